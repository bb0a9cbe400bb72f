// Package validate derives per-field error lists from a compiled schema
// and a candidate value map. Only currently-visible fields are checked;
// hidden fields can never block submission regardless of their stored
// value. Like evaluation, derivation is total: it always produces a
// result and never fails on user input.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ticketform/pkg/evaluate"
	"github.com/goliatone/go-ticketform/pkg/schema"
)

// File is the value shape stored for file fields: upload metadata, not
// content. Byte transfer belongs to the surrounding application.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Errors maps field ids to their ordered error messages. A missing id or
// an empty list means the field is valid.
type Errors map[string][]string

// Valid reports whether no field carries an error.
func (e Errors) Valid() bool {
	for _, messages := range e {
		if len(messages) > 0 {
			return false
		}
	}
	return true
}

// Validate checks every visible field of the schema against the value
// map. The visibility result must come from evaluating the same schema
// and values, which sessions guarantee by recomputing both per change.
func Validate(compiled *schema.CompiledSchema, values map[string]any, visibility evaluate.Result) Errors {
	errs := make(Errors)

	for _, field := range compiled.Fields() {
		if !visibility.Visible(field.ID) {
			continue
		}
		if messages := checkField(field, values); len(messages) > 0 {
			errs[field.ID] = messages
		}
	}

	return errs
}

func checkField(field *schema.CompiledField, values map[string]any) []string {
	value, present := values[field.ID]

	var messages []string

	required := field.Required
	if field.RequiredExpr != nil {
		required = field.RequiredExpr.Eval(values)
	}
	if required && isEmpty(field.Type, value, present) {
		return []string{"required"}
	}
	if isEmpty(field.Type, value, present) {
		// Absent optional values skip every other constraint.
		return nil
	}

	switch field.Type {
	case schema.FieldTypeNumber:
		messages = append(messages, checkNumber(field, value)...)
	case schema.FieldTypeText, schema.FieldTypeTextarea:
		messages = append(messages, checkText(field, value)...)
	case schema.FieldTypeSelect, schema.FieldTypeRadio:
		messages = append(messages, checkOption(field, value)...)
	case schema.FieldTypeDate:
		messages = append(messages, checkDate(value)...)
	case schema.FieldTypeFile:
		messages = append(messages, checkFiles(field, value)...)
	}

	return normalizeMessages(messages)
}

// isEmpty implements the required-non-empty check per field type. A
// required checkbox must be checked, matching the consent-box semantics
// of HTML's required attribute.
func isEmpty(fieldType schema.FieldType, value any, present bool) bool {
	if !present || value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return fieldType == schema.FieldTypeCheckbox && !v
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case []File:
		return len(v) == 0
	default:
		return false
	}
}

func checkNumber(field *schema.CompiledField, value any) []string {
	number, ok := toNumber(value)
	if !ok {
		return []string{"must be a number"}
	}

	var messages []string
	if v := field.Validation; v != nil {
		if v.Min != nil && number < *v.Min {
			messages = append(messages, fmt.Sprintf("must be at least %s", formatNumber(*v.Min)))
		}
		if v.Max != nil && number > *v.Max {
			messages = append(messages, fmt.Sprintf("must be at most %s", formatNumber(*v.Max)))
		}
	}
	return messages
}

func checkText(field *schema.CompiledField, value any) []string {
	text := toString(value)

	var messages []string
	if v := field.Validation; v != nil {
		length := len([]rune(text))
		if v.MinLength != nil && length < *v.MinLength {
			messages = append(messages, fmt.Sprintf("must be at least %d characters", *v.MinLength))
		}
		if v.MaxLength != nil && length > *v.MaxLength {
			messages = append(messages, fmt.Sprintf("must be at most %d characters", *v.MaxLength))
		}
	}
	if field.Pattern != nil && !field.Pattern.MatchString(text) {
		messages = append(messages, "has an invalid format")
	}
	return messages
}

func checkOption(field *schema.CompiledField, value any) []string {
	if !field.HasOption(toString(value)) {
		return []string{"must be one of the listed options"}
	}
	return nil
}

func checkDate(value any) []string {
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(toString(value))); err != nil {
		return []string{"must be a date in YYYY-MM-DD format"}
	}
	return nil
}

func checkFiles(field *schema.CompiledField, value any) []string {
	files, ok := value.([]File)
	if !ok {
		return []string{"must be a list of files"}
	}

	var messages []string
	if v := field.Validation; v != nil {
		if v.MaxFiles > 0 && len(files) > v.MaxFiles {
			messages = append(messages, fmt.Sprintf("accepts at most %d files", v.MaxFiles))
		}
		if v.MaxFileBytes > 0 {
			for _, file := range files {
				if file.Size > v.MaxFileBytes {
					messages = append(messages, fmt.Sprintf("%s exceeds the %d byte limit", file.Name, v.MaxFileBytes))
				}
			}
		}
	}
	return messages
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normalizeMessages trims and deduplicates while preserving order.
func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
