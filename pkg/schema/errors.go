package schema

import "fmt"

// Error reports a malformed schema: structural defects such as duplicate
// ids, invalid rules or forward references. It is fatal at load time and
// never produced during evaluation of user input.
type Error struct {
	Schema string // schema id, when known
	Field  string // offending field id, when the defect is field-scoped
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	prefix := "schema"
	if e.Schema != "" {
		prefix = fmt.Sprintf("schema %q", e.Schema)
	}
	if e.Field != "" {
		prefix += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs a schema Error. Collaborating packages use it to
// report structural integrity violations in schema terms, such as initial
// values referencing ids the schema does not declare.
func NewError(schemaID, fieldID, msg string) *Error {
	return &Error{Schema: schemaID, Field: fieldID, Msg: msg}
}

func errorf(schemaID, fieldID, format string, args ...any) *Error {
	return &Error{Schema: schemaID, Field: fieldID, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(schemaID, fieldID, msg string, err error) *Error {
	return &Error{Schema: schemaID, Field: fieldID, Msg: msg, Err: err}
}
