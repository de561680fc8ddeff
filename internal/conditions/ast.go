package conditions

import "strings"

// Op is a comparison operator in the condition grammar.
type Op string

const (
	OpEq   Op = "="
	OpNeq  Op = "!="
	OpGt   Op = ">"
	OpLt   Op = "<"
	OpGte  Op = ">="
	OpLte  Op = "<="
	OpLike Op = "LIKE"
	OpIn   Op = "IN"
)

// LiteralKind discriminates the literal types the grammar admits.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a parsed literal value.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

// PathSegment is one hop in a field path: a key, optionally followed by indexes.
type PathSegment struct {
	Key     string
	Indexes []int
}

// Condition is a compiled comparison: field path, operator, right-hand side.
// IN carries a list; all other operators carry a single literal.
type Condition struct {
	Source string
	Path   []PathSegment
	Op     Op
	Lit    Literal
	List   []Literal
}

// FieldPath returns the dotted source form of the condition's field path.
func (c *Condition) FieldPath() string {
	parts := make([]string, len(c.Path))
	for i, seg := range c.Path {
		parts[i] = seg.Key
	}
	return strings.Join(parts, ".")
}
