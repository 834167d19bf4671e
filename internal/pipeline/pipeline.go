// Package pipeline wires the governance checker, the plugin chain and the
// compiler into the single processing path an IR takes before a model call.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/forma/internal/compiler"
	"github.com/metalagman/forma/internal/governance"
	"github.com/metalagman/forma/internal/ir"
	"github.com/metalagman/forma/internal/plugin"
)

// Pipeline processes IRs. It is safe for concurrent use: IRs are never
// shared mutable state (clone-before-mutate) and the audit log serializes
// appends.
type Pipeline struct {
	checker  *governance.Checker
	chain    *plugin.Chain
	compiler *compiler.Compiler

	mu    sync.Mutex
	audit []plugin.Transformation
}

// New assembles a pipeline from its three stages.
func New(checker *governance.Checker, chain *plugin.Chain, comp *compiler.Compiler) *Pipeline {
	return &Pipeline{checker: checker, chain: chain, compiler: comp}
}

// Process runs governance then the plugin chain. A deny short-circuits: the
// original, untransformed IR is returned with approved=false and zero plugin
// execution, so no external-call budget is ever spent on a denied IR.
func (p *Pipeline) Process(in *ir.PromptIR) (*ir.PromptIR, bool, []string) {
	result := p.checker.Check(in)
	if !result.Approved {
		return in, false, result.Strings()
	}

	out, records, stats := p.chain.Apply(in)
	if len(records) > 0 {
		p.mu.Lock()
		p.audit = append(p.audit, records...)
		p.mu.Unlock()
	}
	log.Debug().
		Str("ir_id", in.ID).
		Int("applied", stats.Applied).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("plugin chain done")

	return out, true, result.Strings()
}

// Compile turns a processed IR into the model-ready packet. The context
// bounds external context resolution.
func (p *Pipeline) Compile(ctx context.Context, in *ir.PromptIR) (*compiler.CompiledPrompt, error) {
	return p.compiler.Compile(ctx, in)
}

// Compiler exposes the compiler for collaborators that need template
// metadata (temperature resolution).
func (p *Pipeline) Compiler() *compiler.Compiler { return p.compiler }

// Report returns the governance counters.
func (p *Pipeline) Report() governance.Stats { return p.checker.Report() }

// AuditLog returns a copy of the accumulated transformation records.
func (p *Pipeline) AuditLog() []plugin.Transformation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]plugin.Transformation(nil), p.audit...)
}
