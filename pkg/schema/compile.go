package schema

import (
	"regexp"
	"strings"

	"github.com/goliatone/go-ticketform/pkg/condition"
)

// CompiledField pairs a field definition with its parsed rules and
// precompiled pattern. Instances are created by Compile and never mutated
// afterwards.
type CompiledField struct {
	FieldDefinition

	SectionID string

	VisibleExpr  condition.Expr // nil means always visible
	ReadOnlyExpr condition.Expr // nil means never read-only
	RequiredExpr condition.Expr // nil means Required flag decides

	Pattern *regexp.Regexp

	optionValues map[string]struct{}
}

// HasOption reports whether value is a member of the field's option set.
func (f *CompiledField) HasOption(value string) bool {
	_, ok := f.optionValues[value]
	return ok
}

// CompiledSection carries a section definition plus its compiled fields in
// declaration order.
type CompiledSection struct {
	SectionDefinition
	Fields []*CompiledField
}

// CompiledSchema is the immutable load-time artifact shared read-only by
// every session bound to that schema version.
type CompiledSchema struct {
	source   FormSchema
	sections []*CompiledSection
	fields   []*CompiledField
	index    map[string]*CompiledField
}

// ID returns the schema identifier.
func (s *CompiledSchema) ID() string { return s.source.ID }

// Version returns the schema version.
func (s *CompiledSchema) Version() string { return s.source.Version }

// Source returns the authored document the schema was compiled from.
func (s *CompiledSchema) Source() FormSchema { return s.source }

// Sections returns the compiled sections in display order.
func (s *CompiledSchema) Sections() []*CompiledSection { return s.sections }

// Fields returns every compiled field in schema declaration order.
func (s *CompiledSchema) Fields() []*CompiledField { return s.fields }

// Field looks up a field by id.
func (s *CompiledSchema) Field(id string) (*CompiledField, bool) {
	field, ok := s.index[id]
	return field, ok
}

// HasField reports whether the schema declares the field id.
func (s *CompiledSchema) HasField(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Compile validates an authored schema and produces the immutable compiled
// form. All structural checks happen here, once: id uniqueness, option-set
// sanity, rule parsing and the declaration-order reference constraint.
func Compile(form FormSchema) (*CompiledSchema, error) {
	if strings.TrimSpace(form.ID) == "" {
		return nil, errorf("", "", "schema id is required")
	}
	if len(form.Sections) == 0 {
		return nil, errorf(form.ID, "", "schema declares no sections")
	}

	compiled := &CompiledSchema{
		source: form,
		index:  make(map[string]*CompiledField),
	}

	sectionIDs := make(map[string]struct{}, len(form.Sections))
	declared := make(map[string]struct{})

	for _, section := range form.Sections {
		if strings.TrimSpace(section.ID) == "" {
			return nil, errorf(form.ID, "", "section id is required")
		}
		if _, dup := sectionIDs[section.ID]; dup {
			return nil, errorf(form.ID, "", "duplicate section id %q", section.ID)
		}
		sectionIDs[section.ID] = struct{}{}

		compiledSection := &CompiledSection{SectionDefinition: section}

		for _, def := range section.Fields {
			field, err := compileField(form.ID, section.ID, def, declared)
			if err != nil {
				return nil, err
			}
			declared[field.ID] = struct{}{}
			compiled.index[field.ID] = field
			compiled.fields = append(compiled.fields, field)
			compiledSection.Fields = append(compiledSection.Fields, field)
		}

		compiled.sections = append(compiled.sections, compiledSection)
	}

	return compiled, nil
}

func compileField(schemaID, sectionID string, def FieldDefinition, declared map[string]struct{}) (*CompiledField, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, errorf(schemaID, "", "field id is required (section %q)", sectionID)
	}
	if _, dup := declared[def.ID]; dup {
		return nil, errorf(schemaID, def.ID, "duplicate field id")
	}
	if !def.Type.Valid() {
		return nil, errorf(schemaID, def.ID, "unknown field type %q", def.Type)
	}

	field := &CompiledField{FieldDefinition: def, SectionID: sectionID}

	if err := compileOptions(schemaID, field); err != nil {
		return nil, err
	}
	if err := compileValidation(schemaID, field); err != nil {
		return nil, err
	}

	if def.Required && strings.TrimSpace(def.RequiredWhen) != "" {
		return nil, errorf(schemaID, def.ID, "required and requiredWhen are mutually exclusive")
	}

	var err error
	if field.VisibleExpr, err = compileRule(schemaID, def.ID, "visibleWhen", def.VisibleWhen, declared); err != nil {
		return nil, err
	}
	if field.ReadOnlyExpr, err = compileRule(schemaID, def.ID, "readOnlyWhen", def.ReadOnlyWhen, declared); err != nil {
		return nil, err
	}
	if field.RequiredExpr, err = compileRule(schemaID, def.ID, "requiredWhen", def.RequiredWhen, declared); err != nil {
		return nil, err
	}

	return field, nil
}

func compileOptions(schemaID string, field *CompiledField) error {
	if !field.Type.HasOptions() {
		if len(field.Options) > 0 {
			return errorf(schemaID, field.ID, "options are only valid for select/radio fields")
		}
		return nil
	}

	if len(field.Options) == 0 {
		return errorf(schemaID, field.ID, "%s field requires options", field.Type)
	}

	field.optionValues = make(map[string]struct{}, len(field.Options))
	for _, option := range field.Options {
		if strings.TrimSpace(option.Value) == "" {
			return errorf(schemaID, field.ID, "option value is required")
		}
		if _, dup := field.optionValues[option.Value]; dup {
			return errorf(schemaID, field.ID, "duplicate option value %q", option.Value)
		}
		field.optionValues[option.Value] = struct{}{}
	}
	return nil
}

func compileValidation(schemaID string, field *CompiledField) error {
	v := field.Validation
	if v == nil {
		return nil
	}

	if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
		return errorf(schemaID, field.ID, "validation min %v exceeds max %v", *v.Min, *v.Max)
	}
	if v.MinLength != nil && *v.MinLength < 0 {
		return errorf(schemaID, field.ID, "validation minLength must not be negative")
	}
	if v.MaxLength != nil && *v.MaxLength < 0 {
		return errorf(schemaID, field.ID, "validation maxLength must not be negative")
	}
	if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
		return errorf(schemaID, field.ID, "validation minLength %d exceeds maxLength %d", *v.MinLength, *v.MaxLength)
	}
	if v.MaxFiles < 0 || v.MaxFileBytes < 0 {
		return errorf(schemaID, field.ID, "file limits must not be negative")
	}

	if strings.TrimSpace(v.Pattern) != "" {
		pattern, err := regexp.Compile(v.Pattern)
		if err != nil {
			return wrapError(schemaID, field.ID, "invalid validation pattern", err)
		}
		field.Pattern = pattern
	}
	return nil
}

// compileRule parses one conditional rule and enforces that it only
// references fields declared earlier in the schema. The declared set does
// not yet contain the field being compiled, so self references fail the
// same way forward references do.
func compileRule(schemaID, fieldID, kind, rule string, declared map[string]struct{}) (condition.Expr, error) {
	expr, err := condition.Parse(rule)
	if err != nil {
		return nil, wrapError(schemaID, fieldID, "invalid "+kind+" rule", err)
	}
	if expr == nil {
		return nil, nil
	}

	for _, ref := range condition.References(expr) {
		if _, ok := declared[ref]; !ok {
			return nil, errorf(schemaID, fieldID, "%s references %q which is not declared earlier in the schema", kind, ref)
		}
	}
	return expr, nil
}
