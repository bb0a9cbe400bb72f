package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType enumerates the editable field kinds a ticket form supports.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDate     FieldType = "date"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeFile     FieldType = "file"
)

var fieldTypes = map[FieldType]struct{}{
	FieldTypeText:     {},
	FieldTypeNumber:   {},
	FieldTypeTextarea: {},
	FieldTypeSelect:   {},
	FieldTypeDate:     {},
	FieldTypeCheckbox: {},
	FieldTypeRadio:    {},
	FieldTypeFile:     {},
}

// Valid reports whether the type is one of the supported field kinds.
func (t FieldType) Valid() bool {
	_, ok := fieldTypes[t]
	return ok
}

// HasOptions reports whether the type carries an authored option set.
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio
}

// Option is one entry of a select/radio option set. Documents may write
// options as plain scalars, in which case the value doubles as the label.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DisplayLabel returns the label, falling back to the value.
func (o Option) DisplayLabel() string {
	if strings.TrimSpace(o.Label) != "" {
		return o.Label
	}
	return o.Value
}

// UnmarshalJSON accepts either a bare string or a {value, label} object.
func (o *Option) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		*o = Option{Value: scalar}
		return nil
	}

	type plain Option
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("schema: option must be a string or {value, label}: %w", err)
	}
	*o = Option(obj)
	return nil
}

// UnmarshalYAML accepts either a bare scalar or a {value, label} mapping.
func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*o = Option{Value: node.Value}
		return nil
	}

	type plain Option
	var obj plain
	if err := node.Decode(&obj); err != nil {
		return fmt.Errorf("schema: option must be a scalar or {value, label}: %w", err)
	}
	*o = Option(obj)
	return nil
}

// Validation declares the value constraints checked for a field while it
// is visible. Zero/nil members mean the constraint is absent.
type Validation struct {
	Min          *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength    *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength    *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern      string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MaxFiles     int      `json:"maxFiles,omitempty" yaml:"maxFiles,omitempty"`
	MaxFileBytes int64    `json:"maxFileBytes,omitempty" yaml:"maxFileBytes,omitempty"`
}

// FieldDefinition describes one editable value slot. Field ids are unique
// across the whole schema because value storage is a single flat map.
type FieldDefinition struct {
	ID           string            `json:"id" yaml:"id"`
	Type         FieldType         `json:"type" yaml:"type"`
	Label        string            `json:"label,omitempty" yaml:"label,omitempty"`
	Help         string            `json:"help,omitempty" yaml:"help,omitempty"`
	Placeholder  string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Default      any               `json:"default,omitempty" yaml:"default,omitempty"`
	Options      []Option          `json:"options,omitempty" yaml:"options,omitempty"`
	Required     bool              `json:"required,omitempty" yaml:"required,omitempty"`
	RequiredWhen string            `json:"requiredWhen,omitempty" yaml:"requiredWhen,omitempty"`
	VisibleWhen  string            `json:"visibleWhen,omitempty" yaml:"visibleWhen,omitempty"`
	ReadOnlyWhen string            `json:"readOnlyWhen,omitempty" yaml:"readOnlyWhen,omitempty"`
	Validation   *Validation       `json:"validation,omitempty" yaml:"validation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DisplayLabel returns the label, falling back to the id.
func (f FieldDefinition) DisplayLabel() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.ID
}

// SectionDefinition groups an ordered run of fields under a heading.
// Section order is display order.
type SectionDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// FormSchema is the authored document: ordered sections plus identity
// metadata. A new version is a new schema instance; compiled schemas are
// immutable and shared read-only across sessions.
type FormSchema struct {
	ID       string              `json:"id" yaml:"id"`
	Version  string              `json:"version,omitempty" yaml:"version,omitempty"`
	Title    string              `json:"title,omitempty" yaml:"title,omitempty"`
	Sections []SectionDefinition `json:"sections" yaml:"sections"`
	Metadata map[string]string   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
