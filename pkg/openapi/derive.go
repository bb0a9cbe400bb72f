// Package openapi derives ticket form schemas from OpenAPI 3 documents.
// An operation's request body becomes a FormSchema: object properties map
// to fields, the required list to required flags and declared bounds to
// validation config. The result still goes through schema.Compile, so a
// derived schema gets the same structural checks as an authored one.
//
// Authors steer the derivation with x-ticketform-* extensions on property
// schemas: section, order, visibleWhen, readOnlyWhen and requiredWhen.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-ticketform/pkg/schema"
)

const (
	extSection      = "x-ticketform-section"
	extOrder        = "x-ticketform-order"
	extVisibleWhen  = "x-ticketform-visible-when"
	extReadOnlyWhen = "x-ticketform-readonly-when"
	extRequiredWhen = "x-ticketform-required-when"

	defaultSectionID = "details"
)

// Options configures the derivation.
type Options struct {
	// SchemaVersion stamps the derived schema; defaults to the document's
	// info.version.
	SchemaVersion string

	// DefaultSectionTitle names the section fields land in when no
	// x-ticketform-section extension is present.
	DefaultSectionTitle string
}

// Option mutates Options.
type Option func(*Options)

// WithSchemaVersion overrides the derived schema version.
func WithSchemaVersion(version string) Option {
	return func(o *Options) {
		o.SchemaVersion = version
	}
}

// WithDefaultSectionTitle overrides the fallback section title.
func WithDefaultSectionTitle(title string) Option {
	return func(o *Options) {
		o.DefaultSectionTitle = title
	}
}

// Derive parses an OpenAPI document and builds the form schema for one
// operation's request body.
func Derive(ctx context.Context, raw []byte, operationID string, opts ...Option) (schema.FormSchema, error) {
	if len(raw) == 0 {
		return schema.FormSchema{}, errors.New("openapi: document payload is empty")
	}
	if strings.TrimSpace(operationID) == "" {
		return schema.FormSchema{}, errors.New("openapi: operation id is required")
	}

	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("openapi: load document: %w", err)
	}

	operation := findOperation(spec, operationID)
	if operation == nil {
		return schema.FormSchema{}, fmt.Errorf("openapi: operation %q not found", operationID)
	}

	body := requestBodySchema(operation)
	if body == nil {
		return schema.FormSchema{}, fmt.Errorf("openapi: operation %q has no object request body", operationID)
	}

	version := options.SchemaVersion
	if version == "" && spec.Info != nil {
		version = spec.Info.Version
	}

	form := schema.FormSchema{
		ID:      operationID,
		Version: version,
		Title:   operation.Summary,
	}

	for _, section := range buildSections(body, options) {
		form.Sections = append(form.Sections, section)
	}
	if len(form.Sections) == 0 {
		return schema.FormSchema{}, fmt.Errorf("openapi: operation %q request body has no properties", operationID)
	}
	return form, nil
}

// DeriveCompile derives and compiles in one step.
func DeriveCompile(ctx context.Context, raw []byte, operationID string, opts ...Option) (*schema.CompiledSchema, error) {
	form, err := Derive(ctx, raw, operationID, opts...)
	if err != nil {
		return nil, err
	}
	return schema.Compile(form)
}

func findOperation(spec *openapi3.T, operationID string) *openapi3.Operation {
	if spec.Paths == nil {
		return nil
	}
	for _, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for _, operation := range item.Operations() {
			if operation != nil && operation.OperationID == operationID {
				return operation
			}
		}
	}
	return nil
}

func requestBodySchema(operation *openapi3.Operation) *openapi3.Schema {
	if operation.RequestBody == nil || operation.RequestBody.Value == nil {
		return nil
	}
	content := operation.RequestBody.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	for _, mt := range content {
		if mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

type derivedField struct {
	field   schema.FieldDefinition
	section string
	order   int
	name    string
}

func buildSections(body *openapi3.Schema, options Options) []schema.SectionDefinition {
	required := make(map[string]struct{}, len(body.Required))
	for _, name := range body.Required {
		required[name] = struct{}{}
	}

	fields := make([]derivedField, 0, len(body.Properties))
	for name, ref := range body.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		_, isRequired := required[name]
		fields = append(fields, deriveField(name, ref.Value, isRequired))
	}

	// Property maps are unordered; order by the explicit extension first,
	// then by name, so derivation is deterministic.
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].order != fields[j].order {
			return fields[i].order < fields[j].order
		}
		return fields[i].name < fields[j].name
	})

	sectionIndex := make(map[string]int)
	var sections []schema.SectionDefinition
	for _, derived := range fields {
		idx, ok := sectionIndex[derived.section]
		if !ok {
			idx = len(sections)
			sectionIndex[derived.section] = idx
			sections = append(sections, newSection(derived.section, options))
		}
		sections[idx].Fields = append(sections[idx].Fields, derived.field)
	}
	return sections
}

func newSection(id string, options Options) schema.SectionDefinition {
	title := titleCase(strings.ReplaceAll(id, "_", " "))
	if id == defaultSectionID && options.DefaultSectionTitle != "" {
		title = options.DefaultSectionTitle
	}
	return schema.SectionDefinition{ID: id, Title: title}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func deriveField(name string, src *openapi3.Schema, required bool) derivedField {
	field := schema.FieldDefinition{
		ID:       name,
		Type:     fieldType(src),
		Label:    src.Title,
		Help:     src.Description,
		Default:  src.Default,
		Required: required,
	}

	if field.Type.HasOptions() {
		for _, value := range src.Enum {
			field.Options = append(field.Options, schema.Option{Value: fmt.Sprint(value)})
		}
	}

	field.Validation = deriveValidation(src)
	field.VisibleWhen = stringExtension(src, extVisibleWhen)
	field.ReadOnlyWhen = stringExtension(src, extReadOnlyWhen)
	field.RequiredWhen = stringExtension(src, extRequiredWhen)
	if field.RequiredWhen != "" {
		// The conditional rule supersedes the static flag.
		field.Required = false
	}

	section := stringExtension(src, extSection)
	if section == "" {
		section = defaultSectionID
	}

	return derivedField{
		field:   field,
		section: section,
		order:   intExtension(src, extOrder),
		name:    name,
	}
}

func fieldType(src *openapi3.Schema) schema.FieldType {
	switch firstType(src.Type) {
	case "boolean":
		return schema.FieldTypeCheckbox
	case "number", "integer":
		return schema.FieldTypeNumber
	case "string":
		if len(src.Enum) > 0 {
			return schema.FieldTypeSelect
		}
		switch src.Format {
		case "date", "date-time":
			return schema.FieldTypeDate
		case "binary", "byte":
			return schema.FieldTypeFile
		case "textarea":
			return schema.FieldTypeTextarea
		}
		if src.MaxLength != nil && *src.MaxLength > 500 {
			return schema.FieldTypeTextarea
		}
		return schema.FieldTypeText
	default:
		return schema.FieldTypeText
	}
}

func deriveValidation(src *openapi3.Schema) *schema.Validation {
	var v schema.Validation
	var set bool

	if src.Min != nil {
		value := *src.Min
		v.Min = &value
		set = true
	}
	if src.Max != nil {
		value := *src.Max
		v.Max = &value
		set = true
	}
	if src.MinLength > 0 {
		value := int(src.MinLength)
		v.MinLength = &value
		set = true
	}
	if src.MaxLength != nil {
		value := int(*src.MaxLength)
		v.MaxLength = &value
		set = true
	}
	if src.Pattern != "" {
		v.Pattern = src.Pattern
		set = true
	}

	if !set {
		return nil
	}
	return &v
}

func firstType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	values := types.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func stringExtension(src *openapi3.Schema, key string) string {
	if raw, ok := src.Extensions[key]; ok {
		if value, ok := raw.(string); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func intExtension(src *openapi3.Schema, key string) int {
	switch value := src.Extensions[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}
