package plugin

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/forma/internal/ir"
)

func buildIR(t *testing.T, b *ir.Builder) *ir.PromptIR {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestContextDigestNoOpBelowThreshold(t *testing.T) {
	p := buildIR(t, ir.New("coder", "x").ContextRefs("a.go", "b.go"))

	d := NewContextDigest(10)
	out, _, err := d.Transform(p)
	require.NoError(t, err)
	assert.Same(t, p, out)
}

func TestContextDigestFoldsAboveThreshold(t *testing.T) {
	refs := make([]string, 12)
	for i := range refs {
		refs[i] = fmt.Sprintf("file:pkg/f%02d.go", i)
	}
	p := buildIR(t, ir.New("coder", "x").ContextRefs(refs...))

	out, desc, err := NewContextDigest(10).Transform(p)
	require.NoError(t, err)
	assert.NotSame(t, p, out)
	assert.Equal(t, []string{ir.ContextDigestSentinel}, out.ContextRefs)
	assert.Equal(t, refs, out.Metadata[ir.MetaOriginalContextRefs])
	assert.Contains(t, out.Metadata[ir.MetaContextDigest], "12 context references")
	assert.Contains(t, out.Metadata[ir.MetaContextDigest], "and 7 more")
	assert.Contains(t, desc, "12")

	// Input untouched.
	assert.Equal(t, refs, p.ContextRefs)
	assert.NotContains(t, p.Metadata, ir.MetaOriginalContextRefs)
}

func TestBudgetOptimizerAdjusts(t *testing.T) {
	p := buildIR(t, ir.New("planner", "plan").Phase(ir.PhasePlanning).TokenBudget(3000).Priority(7))

	out, _, err := NewBudgetOptimizer().Transform(p)
	require.NoError(t, err)
	// floor(3000 * 1.2 * 1.2) = 4320
	assert.Equal(t, 4320, out.TokenBudget)
	assert.Equal(t, 3000, out.Metadata[ir.MetaOriginalBudget])
	assert.InDelta(t, 1.44, out.Metadata[ir.MetaBudgetMultiplier].(float64), 1e-9)
	assert.Equal(t, 3000, p.TokenBudget)
}

func TestBudgetOptimizerLowPriorityReview(t *testing.T) {
	p := buildIR(t, ir.New("reviewer", "review").Phase(ir.PhaseReview).TokenBudget(1000).Priority(2))

	out, _, err := NewBudgetOptimizer().Transform(p)
	require.NoError(t, err)
	// 1000 * 0.8 * 0.7 lands just under 560 in float64; truncation toward
	// zero is canonical, so the adjusted budget is 559.
	assert.Equal(t, 559, out.TokenBudget)
}

func TestBudgetOptimizerFixedPoint(t *testing.T) {
	p := buildIR(t, ir.New("planner", "plan").Phase(ir.PhasePlanning).TokenBudget(3000).Priority(7))

	opt := NewBudgetOptimizer()
	once, _, err := opt.Transform(p)
	require.NoError(t, err)
	twice, _, err := opt.Transform(once)
	require.NoError(t, err)

	// Second application is a no-op: same object, no compounding.
	assert.Same(t, once, twice)
	assert.Equal(t, 4320, twice.TokenBudget)
}

func TestBudgetOptimizerNeutralIsNoOp(t *testing.T) {
	p := buildIR(t, ir.New("coder", "x").TokenBudget(1000))

	out, _, err := NewBudgetOptimizer().Transform(p)
	require.NoError(t, err)
	// implementation x priority 5 is multiplier 1.0; still records the
	// original budget so the fixed point is explicit.
	assert.NotSame(t, p, out)
	assert.Equal(t, 1000, out.TokenBudget)
	assert.Equal(t, 1000, out.Metadata[ir.MetaOriginalBudget])

	again, _, err := NewBudgetOptimizer().Transform(out)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

type staticPlugin struct {
	name string
	fn   func(*ir.PromptIR) (*ir.PromptIR, string, error)
}

func (s staticPlugin) Name() string { return s.name }
func (s staticPlugin) Transform(in *ir.PromptIR) (*ir.PromptIR, string, error) {
	return s.fn(in)
}

func TestChainRecordsPerMutation(t *testing.T) {
	refs := make([]string, 11)
	for i := range refs {
		refs[i] = fmt.Sprintf("r%d", i)
	}
	p := buildIR(t, ir.New("planner", "plan").
		Phase(ir.PhasePlanning).
		ContextRefs(refs...).
		TokenBudget(3000).
		Priority(7))

	out, records, stats := DefaultChain().Apply(p)
	assert.Equal(t, Stats{Applied: 2}, stats)
	require.Len(t, records, 2)
	assert.Equal(t, "context_digest", records[0].Plugin)
	assert.Equal(t, "budget_optimizer", records[1].Plugin)

	// Hashes chain: each record's after is the next record's before.
	assert.NotEqual(t, records[0].BeforeHash, records[0].AfterHash)
	assert.Equal(t, records[0].AfterHash, records[1].BeforeHash)
	assert.Equal(t, out.Hash(), records[1].AfterHash)
	assert.Equal(t, p.Hash(), records[0].BeforeHash)
}

func TestChainNoOpProducesNoRecord(t *testing.T) {
	p := buildIR(t, ir.New("coder", "x").TokenBudget(0))

	// First pass records the original budget once; the digest is skipped.
	out, records, stats := DefaultChain().Apply(p)
	require.Len(t, records, 1)
	assert.Equal(t, Stats{Applied: 1, Skipped: 1}, stats)

	_, records2, stats2 := DefaultChain().Apply(out)
	assert.Empty(t, records2)
	assert.Equal(t, Stats{Skipped: 2}, stats2)
}

func TestChainIsolatesFailingPlugin(t *testing.T) {
	boom := staticPlugin{name: "boom", fn: func(in *ir.PromptIR) (*ir.PromptIR, string, error) {
		return nil, "", errors.New("plugin exploded")
	}}
	tag := staticPlugin{name: "tag", fn: func(in *ir.PromptIR) (*ir.PromptIR, string, error) {
		out := in.Clone()
		out.Metadata["tag.seen"] = true
		return out, "tagged", nil
	}}
	chain, err := NewChain(boom, tag)
	require.NoError(t, err)

	p := buildIR(t, ir.New("coder", "x"))
	out, records, stats := chain.Apply(p)
	assert.Equal(t, Stats{Applied: 1, Failed: 1}, stats)
	require.Len(t, records, 1)
	assert.Equal(t, "tag", records[0].Plugin)
	assert.Equal(t, true, out.Metadata["tag.seen"])
}

func TestNewChainRejectsDuplicateNames(t *testing.T) {
	dup := staticPlugin{name: "same", fn: func(in *ir.PromptIR) (*ir.PromptIR, string, error) { return in, "", nil }}
	_, err := NewChain(dup, dup)
	assert.ErrorContains(t, err, "duplicate transformer name")
}
