package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/forma/internal/orchestrator"
)

func TestStaticDefaultSequence(t *testing.T) {
	p := NewStatic()

	plan, err := p.Plan(context.Background(), "ship the feature")
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, "planning", plan[0].Name)
	assert.Equal(t, "implementation", plan[1].Name)
	assert.Equal(t, "review", plan[2].Name)
	assert.Equal(t, []string{"reviewer", "synthesizer"}, plan[2].Roles)
	for _, phase := range plan {
		assert.Equal(t, "ship the feature", phase.Brief)
	}
}

func TestStaticCustomPhasesKeepBriefs(t *testing.T) {
	p := NewStatic(orchestrator.Phase{
		Name:  "research",
		Brief: "read the rfc",
		Roles: []string{"researcher"},
	})

	plan, err := p.Plan(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "read the rfc", plan[0].Brief)
}

func TestStaticEmptyTask(t *testing.T) {
	_, err := NewStatic().Plan(context.Background(), "")
	assert.Error(t, err)
}

func TestStaticPlansAreIndependent(t *testing.T) {
	p := NewStatic()

	first, err := p.Plan(context.Background(), "a")
	require.NoError(t, err)
	first[0].Roles[0] = "mutated"

	second, err := p.Plan(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "planner", second[0].Roles[0])
}
