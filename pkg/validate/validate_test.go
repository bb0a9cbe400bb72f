package validate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-ticketform/pkg/evaluate"
	"github.com/goliatone/go-ticketform/pkg/schema"
)

func compileTicketSchema(t *testing.T) *schema.CompiledSchema {
	t.Helper()
	minLen, maxLen := 4, 20
	min, max := 0.0, 90.0
	compiled, err := schema.Compile(schema.FormSchema{
		ID: "ticket.validate",
		Sections: []schema.SectionDefinition{
			{
				ID: "main",
				Fields: []schema.FieldDefinition{
					{ID: "title", Type: schema.FieldTypeText, Required: true,
						Validation: &schema.Validation{MinLength: &minLen, MaxLength: &maxLen}},
					{ID: "slug", Type: schema.FieldTypeText,
						Validation: &schema.Validation{Pattern: `^[a-z0-9-]+$`}},
					{ID: "kind", Type: schema.FieldTypeSelect,
						Options: []schema.Option{{Value: "bug"}, {Value: "feature"}}},
					{ID: "estimate", Type: schema.FieldTypeNumber,
						Validation: &schema.Validation{Min: &min, Max: &max}},
					{ID: "due", Type: schema.FieldTypeDate},
					{ID: "consent", Type: schema.FieldTypeCheckbox, Required: true},
					{ID: "severity", Type: schema.FieldTypeRadio,
						Options:      []schema.Option{{Value: "low"}, {Value: "high"}},
						VisibleWhen:  `kind == "bug"`,
						RequiredWhen: `kind == "bug"`},
					{ID: "logs", Type: schema.FieldTypeFile,
						Validation: &schema.Validation{MaxFiles: 2, MaxFileBytes: 100}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	return compiled
}

func run(t *testing.T, compiled *schema.CompiledSchema, values map[string]any) Errors {
	t.Helper()
	return Validate(compiled, values, evaluate.Evaluate(compiled, values))
}

func TestValidateRequired(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	errs := run(t, compiled, map[string]any{})
	if diff := cmp.Diff([]string{"required"}, errs["title"]); diff != "" {
		t.Fatalf("title errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"required"}, errs["consent"]); diff != "" {
		t.Fatalf("unchecked required checkbox should error (-want +got):\n%s", diff)
	}
	if _, ok := errs["slug"]; ok {
		t.Fatalf("optional empty slug must not error")
	}
}

func TestValidateHiddenFieldsSkipped(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	// severity is required-when-bug but hidden while kind != bug; even a
	// garbage stored value must not surface errors.
	errs := run(t, compiled, map[string]any{
		"title":    "Printer on fire",
		"consent":  true,
		"kind":     "feature",
		"severity": "nonsense",
	})
	if _, ok := errs["severity"]; ok {
		t.Fatalf("hidden severity must never be validated, got %v", errs["severity"])
	}

	errs = run(t, compiled, map[string]any{
		"title":   "Printer on fire",
		"consent": true,
		"kind":    "bug",
	})
	if diff := cmp.Diff([]string{"required"}, errs["severity"]); diff != "" {
		t.Fatalf("visible severity should be required (-want +got):\n%s", diff)
	}
}

func TestValidateTypeChecks(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	errs := run(t, compiled, map[string]any{
		"title":    "abc",
		"consent":  true,
		"slug":     "Not A Slug",
		"kind":     "task",
		"estimate": "ninety",
		"due":      "tomorrow",
	})

	cases := map[string][]string{
		"title":    {"must be at least 4 characters"},
		"slug":     {"has an invalid format"},
		"kind":     {"must be one of the listed options"},
		"estimate": {"must be a number"},
		"due":      {"must be a date in YYYY-MM-DD format"},
	}
	for field, want := range cases {
		if diff := cmp.Diff(want, errs[field]); diff != "" {
			t.Fatalf("%s errors mismatch (-want +got):\n%s", field, diff)
		}
	}
}

func TestValidateBoundsAndCoercion(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	errs := run(t, compiled, map[string]any{
		"title":    "A fine ticket",
		"consent":  true,
		"estimate": "120",
		"due":      "2026-09-01",
	})
	if diff := cmp.Diff([]string{"must be at most 90"}, errs["estimate"]); diff != "" {
		t.Fatalf("estimate errors mismatch (-want +got):\n%s", diff)
	}
	if _, ok := errs["due"]; ok {
		t.Fatalf("valid date should pass, got %v", errs["due"])
	}
	if len(errs) != 1 {
		t.Fatalf("unexpected extra errors: %v", errs)
	}
}

func TestValidateFiles(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	errs := run(t, compiled, map[string]any{
		"title":   "A fine ticket",
		"consent": true,
		"logs": []File{
			{Name: "a.log", Size: 10},
			{Name: "b.log", Size: 500},
			{Name: "c.log", Size: 20},
		},
	})
	want := []string{"accepts at most 2 files", "b.log exceeds the 100 byte limit"}
	if diff := cmp.Diff(want, errs["logs"]); diff != "" {
		t.Fatalf("logs errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateCleanForm(t *testing.T) {
	t.Parallel()

	compiled := compileTicketSchema(t)

	errs := run(t, compiled, map[string]any{
		"title":    "A fine ticket",
		"consent":  true,
		"kind":     "bug",
		"severity": "high",
		"estimate": 30,
		"due":      "2026-09-01",
		"slug":     "a-fine-ticket",
	})
	if !errs.Valid() {
		t.Fatalf("expected a clean form, got %v", errs)
	}
}
