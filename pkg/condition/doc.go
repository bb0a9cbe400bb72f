// Package condition implements the rule language used by field-level
// visibleWhen, readOnlyWhen and requiredWhen expressions.
//
// Rules are parsed once, when a schema is compiled, into a small expression
// tree; evaluation against a value map is total and never fails on user
// input. The grammar:
//
//	expr    := or
//	or      := and ("||" and)*
//	and     := unary ("&&" unary)*
//	unary   := "!" unary | primary
//	primary := "(" expr ")"
//	         | ident "==" literal
//	         | ident "!=" literal
//	         | ident "in" "[" literal ("," literal)* "]"
//	         | ident                      // truthiness check
//	literal := string | number | true | false | null
//
// Identifiers name other fields in the same schema. Strings accept single
// or double quotes. Missing values evaluate as null/zero, so rules such as
// `priority == "urgent"` are simply false while the field is unset.
package condition
