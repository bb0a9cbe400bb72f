package condition

// Expr is a parsed rule. Implementations form a closed set of tagged
// variants so the evaluator stays auditable: no dynamic code is ever
// executed on behalf of a schema document.
type Expr interface {
	// Eval reports whether the rule holds for the given value map. It is
	// total: unknown fields read as null and coercion is forgiving, so user
	// input can never make evaluation fail.
	Eval(values map[string]any) bool

	// appendRefs accumulates the field ids the expression reads.
	appendRefs(dst []string) []string
}

// References returns the field ids the expression reads, deduplicated, in
// first-occurrence order. Schema compilation uses this to enforce that
// rules only reference earlier-declared fields.
func References(expr Expr) []string {
	if expr == nil {
		return nil
	}
	refs := expr.appendRefs(nil)
	if len(refs) < 2 {
		return refs
	}
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// LiteralKind tags the comparison literal variants.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a comparison operand parsed from a rule.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

// CompareOp enumerates the comparison operators.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
)

// Compare tests a field value against a single literal.
type Compare struct {
	Field string
	Op    CompareOp
	Value Literal
}

func (c Compare) Eval(values map[string]any) bool {
	equal := literalEquals(c.Value, values[c.Field])
	if c.Op == OpNeq {
		return !equal
	}
	return equal
}

func (c Compare) appendRefs(dst []string) []string {
	return append(dst, c.Field)
}

// Membership tests a field value against an option set, covering rules
// such as `status in ["open", "pending"]`.
type Membership struct {
	Field  string
	Values []Literal
}

func (m Membership) Eval(values map[string]any) bool {
	current := values[m.Field]
	for _, candidate := range m.Values {
		if literalEquals(candidate, current) {
			return true
		}
	}
	return false
}

func (m Membership) appendRefs(dst []string) []string {
	return append(dst, m.Field)
}

// Truthy is a bare field reference: set, non-empty, non-zero, true.
type Truthy struct {
	Field string
}

func (t Truthy) Eval(values map[string]any) bool {
	value, ok := values[t.Field]
	if !ok {
		return false
	}
	return truthy(value)
}

func (t Truthy) appendRefs(dst []string) []string {
	return append(dst, t.Field)
}

// And is short-circuit conjunction.
type And struct {
	Left, Right Expr
}

func (a And) Eval(values map[string]any) bool {
	return a.Left.Eval(values) && a.Right.Eval(values)
}

func (a And) appendRefs(dst []string) []string {
	return a.Right.appendRefs(a.Left.appendRefs(dst))
}

// Or is short-circuit disjunction.
type Or struct {
	Left, Right Expr
}

func (o Or) Eval(values map[string]any) bool {
	return o.Left.Eval(values) || o.Right.Eval(values)
}

func (o Or) appendRefs(dst []string) []string {
	return o.Right.appendRefs(o.Left.appendRefs(dst))
}

// Not inverts its inner expression.
type Not struct {
	Inner Expr
}

func (n Not) Eval(values map[string]any) bool {
	return !n.Inner.Eval(values)
}

func (n Not) appendRefs(dst []string) []string {
	return n.Inner.appendRefs(dst)
}

func literalEquals(lit Literal, value any) bool {
	switch lit.Kind {
	case LiteralNull:
		return value == nil
	case LiteralBool:
		got, _ := coerceBool(value)
		return got == lit.Bool
	case LiteralNumber:
		got, ok := coerceNumber(value)
		if !ok {
			return false
		}
		return got == lit.Num
	default:
		return coerceString(value) == lit.Str
	}
}
