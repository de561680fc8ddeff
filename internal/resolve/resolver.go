package resolve

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Scope holds all data available for ${...} parameter resolution.
type Scope struct {
	ExecutionID      string
	TriggerData      map[string]any // event payload
	ExecutionResults map[string]any // step name -> output (unmarshalled)
}

// ResolveParams resolves every ${...} reference in a step's parameters and
// returns a new map; the input and the scope are never mutated. A parameter
// whose string value is exactly one reference resolves to the referenced
// value with its type preserved; references embedded in a longer string are
// stringified in place. Any dangling reference is an error: a missing path
// or out-of-range index fails resolution rather than producing a null.
func ResolveParams(params map[string]any, scope *Scope) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		resolved, err := resolveValue(v, scope)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, scope *Scope) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, scope)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			resolved, err := resolveValue(inner, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			resolved, err := resolveValue(inner, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString handles a single string value, distinguishing a whole-value
// reference from embedded references.
func resolveString(s string, scope *Scope) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	// Whole-value reference: "${...}" spanning the entire string.
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") &&
		strings.Index(s[2:], "${") == -1 && strings.Index(s[2:len(s)-1], "}") == -1 {
		return resolveRef(strings.TrimSpace(s[2:len(s)-1]), scope)
	}

	// Embedded references: scan and stringify each in place.
	var result strings.Builder
	result.Grow(len(s))
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "${")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+idx])
		start := i + idx + 2

		end := strings.IndexByte(s[start:], '}')
		if end == -1 {
			return nil, resolutionErr(s, "unclosed ${ reference")
		}
		end += start

		val, err := resolveRef(strings.TrimSpace(s[start:end]), scope)
		if err != nil {
			return nil, err
		}
		result.WriteString(stringifyInline(val))
		i = end + 1
	}
	return result.String(), nil
}

// resolveRef resolves one reference expression like
// "execution_results.extract.entities.amounts[0]".
func resolveRef(expr string, scope *Scope) (any, error) {
	if expr == "" {
		return nil, resolutionErr(expr, "empty reference: ${}")
	}

	segs, err := parsePath(expr)
	if err != nil {
		return nil, err
	}

	head := segs[0]
	switch head.key {
	case "execution_id":
		if len(segs) > 1 || len(head.indexes) > 0 {
			return nil, resolutionErr(expr, "execution_id takes no sub-path")
		}
		return scope.ExecutionID, nil
	case "trigger_data":
		return traverse(scope.TriggerData, segs, expr)
	case "execution_results":
		return traverse(scope.ExecutionResults, segs, expr)
	default:
		available := []string{"trigger_data", "execution_results", "execution_id"}
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"unknown scope %q in ${%s}; available: %s", head.key, expr, strings.Join(available, ", ")).
			WithDetails(map[string]any{"reference": expr, "available_scopes": available})
	}
}

type pathSeg struct {
	key     string
	indexes []int
}

func parsePath(expr string) ([]pathSeg, error) {
	var segs []pathSeg
	for _, part := range strings.Split(expr, ".") {
		if part == "" {
			return nil, resolutionErr(expr, "empty segment in reference path")
		}
		seg := pathSeg{key: part}
		for {
			open := strings.IndexByte(seg.key, '[')
			if open == -1 {
				break
			}
			closing := strings.IndexByte(seg.key[open:], ']')
			if closing == -1 {
				return nil, resolutionErr(expr, "malformed index accessor")
			}
			idx, err := strconv.Atoi(seg.key[open+1 : open+closing])
			if err != nil || idx < 0 {
				return nil, resolutionErr(expr, "malformed index accessor")
			}
			seg.indexes = append(seg.indexes, idx)
			seg.key = seg.key[:open] + seg.key[open+closing+1:]
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// traverse walks the path after the scope name through nested maps and slices.
func traverse(root map[string]any, segs []pathSeg, expr string) (any, error) {
	head := segs[0]

	var current any = root
	if root == nil {
		return nil, resolutionErr(expr, "%s scope is empty", head.key)
	}

	// The scope segment itself may carry indexes only through a sub-path.
	if len(segs) == 1 && len(head.indexes) == 0 {
		return root, nil
	}

	rest := segs[1:]
	if len(head.indexes) > 0 {
		return nil, resolutionErr(expr, "cannot index scope %q directly", head.key)
	}

	for _, seg := range rest {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"cannot traverse into non-object at %q in ${%s} (type: %T)", seg.key, expr, current).
				WithDetails(map[string]any{"reference": expr, "segment": seg.key})
		}
		val, ok := m[seg.key]
		if !ok {
			keys := mapKeys(m)
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"field %q not found in ${%s}; available: [%s]", seg.key, expr, strings.Join(keys, ", ")).
				WithDetails(map[string]any{"reference": expr, "segment": seg.key, "available_fields": keys})
		}
		current = val

		for _, idx := range seg.indexes {
			arr, isArr := current.([]any)
			if !isArr {
				return nil, schema.NewErrorf(schema.ErrCodeResolution,
					"cannot index non-list at %q in ${%s} (type: %T)", seg.key, expr, current).
					WithDetails(map[string]any{"reference": expr, "segment": seg.key})
			}
			if idx >= len(arr) {
				return nil, schema.NewErrorf(schema.ErrCodeResolution,
					"index %d out of range in ${%s} (length %d)", idx, expr, len(arr)).
					WithDetails(map[string]any{"reference": expr, "index": idx, "length": len(arr)})
			}
			current = arr[idx]
		}
	}
	return current, nil
}

// stringifyInline converts a resolved value to its inline string form for
// references embedded inside longer strings.
func stringifyInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// CopyScope returns a deep copy of a data map so step outputs recorded in one
// snapshot are never visible through another.
func CopyScope(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyScope(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolutionErr(ref, format string, args ...any) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeResolution, format, args...).
		WithDetails(map[string]any{"reference": ref})
}
