package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	p, err := New("coder", "add a healthcheck endpoint").Build()
	require.NoError(t, err)

	assert.Equal(t, "coder", p.Role)
	assert.Equal(t, "add a healthcheck endpoint", p.Intent)
	assert.Equal(t, PhaseImplementation, p.Phase)
	assert.Equal(t, DefaultPriority, p.Priority)
	assert.Equal(t, DefaultTemperature, p.TemperatureHint)
	assert.Equal(t, DefaultSchemaID, p.SchemaID)
	assert.Equal(t, Version, p.IRVersion)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*PromptIR, error)
		field string
	}{
		{
			name:  "empty role",
			build: func() (*PromptIR, error) { return New("", "x").Build() },
			field: "role",
		},
		{
			name:  "empty intent",
			build: func() (*PromptIR, error) { return New("coder", "").Build() },
			field: "intent",
		},
		{
			name:  "negative budget",
			build: func() (*PromptIR, error) { return New("coder", "x").TokenBudget(-1).Build() },
			field: "token_budget",
		},
		{
			name:  "priority out of range",
			build: func() (*PromptIR, error) { return New("coder", "x").Priority(11).Build() },
			field: "priority",
		},
		{
			name:  "empty context ref",
			build: func() (*PromptIR, error) { return New("coder", "x").ContextRefs("a.go", "").Build() },
			field: "context_refs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			var malformed *MalformedIRError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestCloneIsDeepAndGetsNewID(t *testing.T) {
	p, err := New("coder", "x").
		ContextRefs("file:a.go").
		Constraints("no new deps").
		Meta("ns.key", []any{"v"}).
		Build()
	require.NoError(t, err)

	clone := p.Clone()
	assert.NotEqual(t, p.ID, clone.ID)
	assert.Equal(t, p.CreatedAt, clone.CreatedAt)

	clone.ContextRefs[0] = "file:b.go"
	clone.Metadata["ns.key"].([]any)[0] = "mutated"
	assert.Equal(t, "file:a.go", p.ContextRefs[0])
	assert.Equal(t, "v", p.Metadata["ns.key"].([]any)[0])
}

func TestRoundTrip(t *testing.T) {
	p, err := New("reviewer", "review the diff").
		Phase(PhaseReview).
		ContextRefs("diff:HEAD~1", "memory:notes").
		Constraints("be terse").
		OutputRequirement("verdict", "string").
		TokenBudget(2000).
		Priority(7).
		ModelHint("claude").
		TemperatureHint(0.3).
		SchemaID("review").
		Meta("forma.test", "yes").
		Build()
	require.NoError(t, err)

	back, err := FromMap(p.ToMap())
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestRoundTripOptionalFieldsAbsent(t *testing.T) {
	p, err := New("coder", "x").Build()
	require.NoError(t, err)

	m := p.ToMap()
	_, hasHint := m["model_hint"]
	assert.False(t, hasHint)

	back, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestFromMapUnknownKeysPassThrough(t *testing.T) {
	p, err := New("coder", "x").Build()
	require.NoError(t, err)

	m := p.ToMap()
	m["future_field"] = map[string]any{"nested": true}

	back, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nested": true}, back.ToMap()["future_field"])
}

func TestVersionGate(t *testing.T) {
	assert.NoError(t, CheckVersion("1.0"))
	assert.NoError(t, CheckVersion("1.7"))

	for _, v := range []string{"", "2.0", "0.9", "abc"} {
		err := CheckVersion(v)
		require.Error(t, err, v)
		var verr *VersionError
		assert.ErrorAs(t, err, &verr)
	}

	p, err := New("coder", "x").Build()
	require.NoError(t, err)
	m := p.ToMap()
	m["ir_version"] = "2.0"
	_, err = FromMap(m)
	assert.Error(t, err)

	m["ir_version"] = "1.9"
	_, err = FromMap(m)
	assert.NoError(t, err)
}

func TestHashStableAndSensitive(t *testing.T) {
	p, err := New("coder", "x").TokenBudget(100).Build()
	require.NoError(t, err)

	assert.Equal(t, p.Hash(), p.Hash())
	assert.Len(t, p.Hash(), 16)

	clone := p.Clone()
	// Clone differs only by id, which is part of the canonical form.
	assert.NotEqual(t, p.Hash(), clone.Hash())
}
