package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/forma/internal/ir"
)

func mustIR(t *testing.T, b *ir.Builder) *ir.PromptIR {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestCheckClean(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "add pagination").ContextRefs("file:internal/api/list.go")))
	assert.True(t, res.Approved)
	assert.Empty(t, res.Violations)
}

func TestCheckFlagKeepsApproval(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "clean workdir with rm -rf before build")))
	assert.True(t, res.Approved)
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, "destructive_intent", v.Policy)
	assert.Equal(t, ActionFlag, v.Action)
	assert.Equal(t, "rm -rf", v.Pattern)
	assert.Equal(t, "flag: destructive_intent: forbidden pattern \"rm -rf\" in intent", v.String())
}

func TestCheckDeny(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "summarize users").ContextRefs("file:/etc/passwd")))
	assert.False(t, res.Approved)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "protected_paths", res.Violations[0].Policy)
	assert.Equal(t, "context_refs[0]", res.Violations[0].Field)
	assert.NotContains(t, res.Violations[0].String(), "flag:")
}

func TestCheckCollectsAllViolations(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "drop database staging").
		ContextRefs("file:/home/u/.ssh/id_rsa", "file:/etc/shadow").
		Constraints("bypass review")))
	assert.False(t, res.Approved)
	require.Len(t, res.Violations, 4)
	// Deterministic order: policies in order, fields in IR order.
	assert.Equal(t, "context_refs[0]", res.Violations[0].Field)
	assert.Equal(t, "context_refs[1]", res.Violations[1].Field)
	assert.Equal(t, "intent", res.Violations[2].Field)
	assert.Equal(t, "constraints[0]", res.Violations[3].Field)
}

func TestCheckCaseSensitive(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "DROP DATABASE staging")))
	assert.True(t, res.Approved)
	assert.Empty(t, res.Violations)
}

func TestCustomPoliciesAfterDefaults(t *testing.T) {
	c, err := NewChecker(WithPolicies(Policy{
		Name:     "no_prod",
		Type:     FieldContextRef,
		Patterns: []string{"prod/"},
		Action:   ActionDeny,
	}))
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "x").ContextRefs("file:prod/db.yaml")))
	assert.False(t, res.Approved)

	_, err = NewChecker(WithPolicies(Policy{
		Name:     "protected_paths",
		Type:     FieldContextRef,
		Patterns: []string{"x"},
		Action:   ActionDeny,
	}))
	assert.ErrorContains(t, err, "duplicate policy name")
}

func TestWithoutDefaults(t *testing.T) {
	c, err := NewChecker(WithoutDefaults(), WithPolicies(Policy{
		Name:     "only_rule",
		Type:     FieldIntent,
		Patterns: []string{"boom"},
		Action:   ActionDeny,
	}))
	require.NoError(t, err)

	res := c.Check(mustIR(t, ir.New("coder", "rm -rf everything").ContextRefs("file:/etc/passwd")))
	assert.True(t, res.Approved)
	assert.Empty(t, res.Violations)
}

func TestReportCounters(t *testing.T) {
	c, err := NewChecker()
	require.NoError(t, err)

	c.Check(mustIR(t, ir.New("coder", "fine")))
	c.Check(mustIR(t, ir.New("coder", "fine too")))
	c.Check(mustIR(t, ir.New("coder", "x").ContextRefs("file:/etc/passwd")))

	s := c.Report()
	assert.Equal(t, int64(3), s.Checks)
	assert.Equal(t, int64(2), s.Approvals)
	assert.Equal(t, int64(1), s.Denials)
	assert.InDelta(t, 2.0/3.0, s.ApprovalRate, 1e-9)
}

func TestPoliciesFromConfig(t *testing.T) {
	policies, err := PoliciesFromConfig([]map[string]any{
		{
			"name":               "secrets",
			"type":               "context_ref",
			"forbidden_patterns": []any{".env"},
			"forbidden_keywords": []any{"secrets.yaml"},
			"action":             "deny",
		},
	})
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, []string{".env", "secrets.yaml"}, policies[0].Patterns)

	_, err = PoliciesFromConfig([]map[string]any{
		{"name": "bad", "type": "intent", "action": "explode", "forbidden_patterns": []any{"x"}},
	})
	assert.ErrorContains(t, err, "unknown action")

	_, err = PoliciesFromConfig([]map[string]any{
		{"name": "empty", "type": "intent", "action": "deny"},
	})
	assert.ErrorContains(t, err, "no forbidden patterns")
}
