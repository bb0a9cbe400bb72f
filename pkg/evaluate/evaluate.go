// Package evaluate computes the derived visibility and read-only state for
// every field of a compiled schema against a value map. Evaluation is a
// pure function: no side effects, identical inputs yield identical output.
package evaluate

import "github.com/goliatone/go-ticketform/pkg/schema"

// FieldState is the derived per-field state.
type FieldState struct {
	Visible  bool
	ReadOnly bool
}

// Result maps field and section ids to their derived state. It is
// recomputed in full on every change rather than diffed incrementally;
// schemas are tens of fields, not thousands.
type Result struct {
	Fields   map[string]FieldState
	Sections map[string]bool
}

// Visible reports the visibility of a field id. Unknown ids are not
// visible.
func (r Result) Visible(fieldID string) bool {
	return r.Fields[fieldID].Visible
}

// Evaluate walks the schema in declaration order and resolves each field's
// visibleWhen/readOnlyWhen rules. Fields without a rule default to visible
// and editable. A section is visible when at least one of its fields is.
//
// Compilation guarantees rules only reference earlier-declared fields, so
// a single ordered pass is complete; no fixpoint iteration is needed.
func Evaluate(compiled *schema.CompiledSchema, values map[string]any) Result {
	result := Result{
		Fields:   make(map[string]FieldState, len(compiled.Fields())),
		Sections: make(map[string]bool, len(compiled.Sections())),
	}

	for _, section := range compiled.Sections() {
		sectionVisible := false
		for _, field := range section.Fields {
			state := FieldState{Visible: true}
			if field.VisibleExpr != nil {
				state.Visible = field.VisibleExpr.Eval(values)
			}
			if field.ReadOnlyExpr != nil {
				state.ReadOnly = field.ReadOnlyExpr.Eval(values)
			}
			result.Fields[field.ID] = state
			if state.Visible {
				sectionVisible = true
			}
		}
		result.Sections[section.ID] = sectionVisible
	}

	return result
}
