// Package planner provides the planning collaborator consumed by the
// orchestrator. The static planner emits a fixed, deterministic phase
// sequence; richer planners can replace it behind the same interface.
package planner

import (
	"context"
	"fmt"

	"github.com/metalagman/forma/internal/orchestrator"
)

// Static plans every task the same way: a configured phase sequence with the
// task as each phase's brief.
type Static struct {
	phases []orchestrator.Phase
}

// NewStatic builds a static planner over the given phase skeletons. With no
// phases it falls back to the stock plan→implement→review sequence.
func NewStatic(phases ...orchestrator.Phase) *Static {
	if len(phases) == 0 {
		phases = []orchestrator.Phase{
			{Name: "planning", Roles: []string{"planner"}},
			{Name: "implementation", Roles: []string{"coder"}},
			{Name: "review", Roles: []string{"reviewer", "synthesizer"}},
		}
	}
	return &Static{phases: phases}
}

// Plan implements orchestrator.Planner.
func (s *Static) Plan(_ context.Context, task string) ([]orchestrator.Phase, error) {
	if task == "" {
		return nil, fmt.Errorf("empty task")
	}
	out := make([]orchestrator.Phase, len(s.phases))
	for i, p := range s.phases {
		p.Roles = append([]string(nil), p.Roles...)
		p.ContextRefs = append([]string(nil), p.ContextRefs...)
		if p.Brief == "" {
			p.Brief = task
		}
		out[i] = p
	}
	return out, nil
}
