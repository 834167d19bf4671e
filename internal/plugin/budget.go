package plugin

import (
	"fmt"
	"math"

	"github.com/metalagman/forma/internal/ir"
)

// phaseMultipliers scale the token budget per workflow phase.
var phaseMultipliers = map[ir.Phase]float64{
	ir.PhasePlanning:       1.2,
	ir.PhaseResearch:       1.3,
	ir.PhaseImplementation: 1.0,
	ir.PhaseReview:         0.8,
	ir.PhaseSynthesis:      1.1,
}

// BudgetOptimizer adjusts the token budget deterministically:
//
//	adjusted = floor(original × phase_multiplier × (1 + (priority-5) × 0.1))
//
// The original budget is kept in metadata so repeated optimization reaches a
// fixed point instead of compounding.
type BudgetOptimizer struct{}

// NewBudgetOptimizer builds the optimizer plugin.
func NewBudgetOptimizer() *BudgetOptimizer { return &BudgetOptimizer{} }

// Name implements Transformer.
func (o *BudgetOptimizer) Name() string { return "budget_optimizer" }

// Transform implements Transformer.
func (o *BudgetOptimizer) Transform(in *ir.PromptIR) (*ir.PromptIR, string, error) {
	original := in.TokenBudget
	if stored, ok := numericMeta(in.Metadata, ir.MetaOriginalBudget); ok {
		original = stored
	}

	multiplier, ok := phaseMultipliers[in.Phase]
	if !ok {
		return nil, "", fmt.Errorf("no phase multiplier for %q", in.Phase)
	}
	priorityBonus := float64(in.Priority-5) * 0.1
	effective := multiplier * (1 + priorityBonus)
	// Truncation toward zero is the canonical behavior for reproducibility.
	adjusted := int(math.Floor(float64(original) * effective))

	if in.TokenBudget == adjusted {
		if stored, ok := numericMeta(in.Metadata, ir.MetaOriginalBudget); ok && stored == original {
			return in, "", nil
		}
	}

	out := in.Clone()
	out.TokenBudget = adjusted
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata[ir.MetaOriginalBudget] = original
	out.Metadata[ir.MetaBudgetMultiplier] = effective

	desc := fmt.Sprintf("budget %d -> %d (x%.2f for %s p%d)", original, adjusted, effective, in.Phase, in.Priority)
	return out, desc, nil
}

// numericMeta reads an integer metadata value, tolerating the float64 form
// JSON decoding produces.
func numericMeta(meta map[string]any, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
