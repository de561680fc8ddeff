package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

func mustCompile(t *testing.T, src string) *Condition {
	t.Helper()
	cond, err := Compile(src)
	require.NoError(t, err)
	return cond
}

func TestCompile_Operators(t *testing.T) {
	tests := []struct {
		src string
		op  Op
	}{
		{"amount = 100", OpEq},
		{"amount != 100", OpNeq},
		{"amount > 100", OpGt},
		{"amount < 100", OpLt},
		{"amount >= 100", OpGte},
		{"amount <= 100", OpLte},
		{"subject LIKE '%urgent%'", OpLike},
		{"level IN ('high', 'urgent')", OpIn},
	}
	for _, tt := range tests {
		cond := mustCompile(t, tt.src)
		assert.Equal(t, tt.op, cond.Op, tt.src)
	}
}

func TestCompile_Malformed(t *testing.T) {
	tests := []string{
		"",
		"amount >",
		"amount 100",
		"= 100",
		"subject LIKE",
		"level IN 'high'",
		"level IN ('high',)",
		"level IN ('high'",
		"subject LIKE '%unterminated",
		"amount = 1 2",
		"amount = abc",
		"items[x] = 1",
	}
	for _, src := range tests {
		_, err := Compile(src)
		require.Error(t, err, src)
		var flowErr *schema.FlowError
		require.ErrorAs(t, err, &flowErr, src)
		assert.Equal(t, schema.ErrCodeCondition, flowErr.Code, src)
	}
}

func TestCompile_Cached(t *testing.T) {
	a := mustCompile(t, "status = 'open'")
	b := mustCompile(t, "status = 'open'")
	assert.Same(t, a, b)
}

func TestEval_Equality(t *testing.T) {
	data := map[string]any{
		"status": "open",
		"amount": 14.0,
		"count":  3,
		"active": true,
	}

	assert.True(t, mustCompile(t, "status = 'open'").Eval(data))
	assert.False(t, mustCompile(t, "status = 'closed'").Eval(data))
	assert.True(t, mustCompile(t, "status != 'closed'").Eval(data))
	assert.True(t, mustCompile(t, "amount = 14").Eval(data))
	assert.True(t, mustCompile(t, "count = 3").Eval(data))
	assert.True(t, mustCompile(t, "active = true").Eval(data))
	assert.False(t, mustCompile(t, "active = false").Eval(data))
	// Cross-type equality is false, not an error.
	assert.False(t, mustCompile(t, "status = 14").Eval(data))
}

func TestEval_MissingField(t *testing.T) {
	data := map[string]any{"present": "yes"}

	// Missing fields fail every comparison...
	assert.False(t, mustCompile(t, "absent = 'yes'").Eval(data))
	assert.False(t, mustCompile(t, "absent > 1").Eval(data))
	assert.False(t, mustCompile(t, "absent LIKE '%y%'").Eval(data))
	assert.False(t, mustCompile(t, "absent IN ('yes')").Eval(data))

	// ...except null checks, where absent means null.
	assert.True(t, mustCompile(t, "absent = null").Eval(data))
	assert.False(t, mustCompile(t, "absent != null").Eval(data))
	assert.False(t, mustCompile(t, "present = null").Eval(data))
	assert.True(t, mustCompile(t, "present != null").Eval(data))
}

func TestEval_Ordering(t *testing.T) {
	data := map[string]any{"amount": 14.0, "name": "beta"}

	assert.True(t, mustCompile(t, "amount > 10").Eval(data))
	assert.False(t, mustCompile(t, "amount > 14").Eval(data))
	assert.True(t, mustCompile(t, "amount >= 14").Eval(data))
	assert.True(t, mustCompile(t, "amount < 15").Eval(data))
	assert.True(t, mustCompile(t, "amount <= 14").Eval(data))
	assert.True(t, mustCompile(t, "name > 'alpha'").Eval(data))
	assert.False(t, mustCompile(t, "name > 'gamma'").Eval(data))
	// Number field against string literal: type mismatch is false.
	assert.False(t, mustCompile(t, "amount > 'alpha'").Eval(data))
}

func TestEval_Like(t *testing.T) {
	data := map[string]any{"sender": "noreply@dmv.ca.gov", "subject": "Notice of Intent to Suspend"}

	assert.True(t, mustCompile(t, "sender LIKE '%dmv%'").Eval(data))
	assert.True(t, mustCompile(t, "sender LIKE '%.gov'").Eval(data))
	assert.True(t, mustCompile(t, "sender LIKE 'noreply%'").Eval(data))
	assert.True(t, mustCompile(t, "subject LIKE 'Notice%Suspend'").Eval(data))
	assert.False(t, mustCompile(t, "sender LIKE '%irs%'").Eval(data))
	// LIKE is case-sensitive.
	assert.False(t, mustCompile(t, "sender LIKE '%DMV%'").Eval(data))
	// Without wildcards LIKE is an exact match.
	assert.False(t, mustCompile(t, "subject LIKE 'Notice'").Eval(data))
	assert.True(t, mustCompile(t, "subject LIKE 'Notice of Intent to Suspend'").Eval(data))
}

func TestEval_In(t *testing.T) {
	data := map[string]any{"urgency": "high", "code": 404.0}

	assert.True(t, mustCompile(t, "urgency IN ('high', 'urgent')").Eval(data))
	assert.False(t, mustCompile(t, "urgency IN ('low', 'normal')").Eval(data))
	assert.True(t, mustCompile(t, "code IN (404, 500)").Eval(data))
	assert.True(t, mustCompile(t, "missing IN (null, 'x')").Eval(map[string]any{}))
}

func TestEval_NestedPath(t *testing.T) {
	data := map[string]any{
		"invoice": map[string]any{
			"vendor": map[string]any{"name": "Acme"},
			"lines":  []any{map[string]any{"total": 99.5}},
		},
	}

	assert.True(t, mustCompile(t, "invoice.vendor.name = 'Acme'").Eval(data))
	assert.True(t, mustCompile(t, "invoice.lines[0].total > 99").Eval(data))
	assert.False(t, mustCompile(t, "invoice.lines[1].total > 0").Eval(data))
	assert.False(t, mustCompile(t, "invoice.vendor.name.deep = 'x'").Eval(data))
}

func TestEvalAll(t *testing.T) {
	data := map[string]any{"sender": "dmv.ca.gov", "urgency": "urgent"}

	ok, err := EvalAll([]string{"sender LIKE '%dmv%'", "urgency IN ('high','urgent')"}, data)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalAll([]string{"sender LIKE '%dmv%'", "urgency = 'low'"}, data)
	require.NoError(t, err)
	assert.False(t, ok)

	// Empty condition list holds vacuously.
	ok, err = EvalAll(nil, data)
	require.NoError(t, err)
	assert.True(t, ok)

	// Malformed expression surfaces an error, never a silent false.
	_, err = EvalAll([]string{"sender LIKE"}, data)
	require.Error(t, err)
}
