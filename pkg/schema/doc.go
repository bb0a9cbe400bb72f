// Package schema defines the declarative form schema for ticket editing:
// ordered sections of field definitions with conditional and validation
// rules, plus the compile step that turns an authored document into the
// immutable artifact sessions evaluate against.
//
// Documents are authored as JSON or YAML. Compile performs every
// structural check once, at load time: schema-wide field id uniqueness,
// option-set sanity, rule parsing, and the declaration-order constraint
// that rules only reference fields declared earlier in the schema.
package schema
