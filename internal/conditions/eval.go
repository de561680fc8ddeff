package conditions

import (
	"encoding/json"
	"strings"
)

// Eval evaluates a compiled condition against a data map.
// A missing field makes any comparison false, except = and != against the
// null literal, where an absent field is treated as null.
func (c *Condition) Eval(data map[string]any) bool {
	val, found := lookup(data, c.Path)

	switch c.Op {
	case OpEq:
		if c.Lit.Kind == LiteralNull {
			return !found || val == nil
		}
		return found && looseEqual(val, c.Lit)
	case OpNeq:
		if c.Lit.Kind == LiteralNull {
			return found && val != nil
		}
		return found && !looseEqual(val, c.Lit)
	case OpGt, OpLt, OpGte, OpLte:
		return found && compareOrdered(val, c.Lit, c.Op)
	case OpLike:
		s, ok := asString(val)
		return found && ok && c.Lit.Kind == LiteralString && matchLike(c.Lit.Str, s)
	case OpIn:
		if !found {
			return false
		}
		for _, lit := range c.List {
			if lit.Kind == LiteralNull {
				if val == nil {
					return true
				}
				continue
			}
			if looseEqual(val, lit) {
				return true
			}
		}
		return false
	}
	return false
}

// EvalAll compiles and evaluates a list of condition expressions as an
// implicit conjunction. An empty list holds vacuously. A malformed
// expression returns an error rather than silently failing the match.
func EvalAll(exprs []string, data map[string]any) (bool, error) {
	for _, src := range exprs {
		cond, err := Compile(src)
		if err != nil {
			return false, err
		}
		if !cond.Eval(data) {
			return false, nil
		}
	}
	return true, nil
}

// lookup walks the field path through nested maps and slices.
func lookup(data map[string]any, path []PathSegment) (any, bool) {
	var current any = data
	for _, seg := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
		for _, idx := range seg.Indexes {
			arr, isArr := current.([]any)
			if !isArr || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}
	return current, true
}

func looseEqual(val any, lit Literal) bool {
	switch lit.Kind {
	case LiteralString:
		s, ok := asString(val)
		return ok && s == lit.Str
	case LiteralNumber:
		n, ok := asNumber(val)
		return ok && n == lit.Num
	case LiteralBool:
		b, ok := val.(bool)
		return ok && b == lit.Bool
	case LiteralNull:
		return val == nil
	}
	return false
}

// compareOrdered applies an ordering operator. Numbers compare numerically,
// strings lexicographically; a type mismatch between field and literal is false.
func compareOrdered(val any, lit Literal, op Op) bool {
	switch lit.Kind {
	case LiteralNumber:
		n, ok := asNumber(val)
		if !ok {
			return false
		}
		return applyOrder(op, compareFloat(n, lit.Num))
	case LiteralString:
		s, ok := asString(val)
		if !ok {
			return false
		}
		return applyOrder(op, strings.Compare(s, lit.Str))
	}
	return false
}

func applyOrder(op Op, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// matchLike matches a % wildcard pattern against a string, case-sensitively.
// % matches zero or more characters; all other characters match literally.
func matchLike(pattern, s string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}

	// Leading segment anchors at the start.
	if parts[0] != "" {
		if !strings.HasPrefix(s, parts[0]) {
			return false
		}
		s = s[len(parts[0]):]
	}

	last := len(parts) - 1
	for _, part := range parts[1:last] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx == -1 {
			return false
		}
		s = s[idx+len(part):]
	}

	// Trailing segment anchors at the end.
	return strings.HasSuffix(s, parts[last])
}

func asString(val any) (string, bool) {
	s, ok := val.(string)
	return s, ok
}

func asNumber(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
