// Package compiler turns an IR into a model-ready instruction packet through
// a deterministic five-stage pipeline: template selection, context
// resolution, model adaptation, schema injection, budget enforcement.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/metalagman/forma/internal/ir"
)

// DefaultFileCap bounds how many characters of a resolved file are inlined.
const DefaultFileCap = 4000

// BudgetExceededError reports a packet that cannot fit the token budget even
// after all context and constraints were pruned.
type BudgetExceededError struct {
	Estimated int
	Budget    int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("compiled prompt needs ~%d tokens, budget is %d after full pruning", e.Estimated, e.Budget)
}

// CompiledPrompt is the final instruction packet.
type CompiledPrompt struct {
	Text            string      `json:"text"`
	EstimatedTokens int         `json:"estimated_tokens"`
	SchemaID        string      `json:"schema_id"`
	Meta            CompileMeta `json:"meta"`
}

// CompileMeta records what compilation did.
type CompileMeta struct {
	Template          string `json:"template"`
	Adapter           string `json:"adapter"`
	DroppedRefs       int    `json:"dropped_refs"`
	PrunedContext     int    `json:"pruned_context"`
	PrunedConstraints int    `json:"pruned_constraints"`
}

// Compiler compiles IRs. All collaborators are injected; the compiler holds
// no global state and every stage is pure given the prior stage's output.
type Compiler struct {
	templates *TemplateRegistry
	adapters  *AdapterRegistry
	source    ContextSource
	fileCap   int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFileCap overrides the per-file character cap.
func WithFileCap(n int) Option {
	return func(c *Compiler) { c.fileCap = n }
}

// WithTemplates injects an alternate template table.
func WithTemplates(t *TemplateRegistry) Option {
	return func(c *Compiler) { c.templates = t }
}

// WithAdapters injects an alternate adapter table.
func WithAdapters(a *AdapterRegistry) Option {
	return func(c *Compiler) { c.adapters = a }
}

// New builds a Compiler around a context source.
func New(source ContextSource, opts ...Option) *Compiler {
	c := &Compiler{
		templates: NewTemplateRegistry(),
		adapters:  NewAdapterRegistry(),
		source:    source,
		fileCap:   DefaultFileCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Templates exposes the template table for temperature resolution.
func (c *Compiler) Templates() *TemplateRegistry { return c.templates }

// Compile runs the five stages and returns the packet. A token budget of
// zero disables budget enforcement. The context governs external context
// resolution (file reads, git commands).
func (c *Compiler) Compile(ctx context.Context, p *ir.PromptIR) (*CompiledPrompt, error) {
	// Stage 1: template selection. Unknown roles get the generic template.
	tmpl, _ := c.templates.Resolve(p.Role)

	// Stage 2: context resolution and pruning.
	blocks, dropped := resolveContext(ctx, p, c.source, c.fileCap)

	// Stage 3: model adaptation (structural wrapping only).
	family := tmpl.ModelFamily
	if p.ModelHint != "" {
		family = p.ModelHint
	}
	adapter := c.adapters.Resolve(family)

	constraints := append(append([]string(nil), tmpl.Constraints...), p.Constraints...)
	s := sections{
		Goal:        tmpl.Goal,
		Intent:      p.Intent,
		Context:     blocks,
		Constraints: constraints,
	}

	// Stage 4: schema injection. The schema section is fixed text the model
	// must always receive, so it goes in before enforcement and counts
	// against the budget like everything else.
	s.Schema = renderSchema(p, tmpl)

	// Stage 5: token budget enforcement over the complete packet. Lowest-
	// priority context is pruned first, then constraints, until compliant or
	// nothing prunable is left.
	meta := CompileMeta{
		Template:    tmpl.Role,
		Adapter:     adapter.Family(),
		DroppedRefs: dropped,
	}
	text := adapter.Render(s)
	estimated := EstimateTokens(text)
	if p.TokenBudget > 0 {
		for estimated > p.TokenBudget {
			if len(s.Context) > 0 {
				s.Context = s.Context[:len(s.Context)-1]
				meta.PrunedContext++
			} else if len(s.Constraints) > 0 {
				s.Constraints = s.Constraints[:len(s.Constraints)-1]
				meta.PrunedConstraints++
			} else {
				return nil, &BudgetExceededError{Estimated: estimated, Budget: p.TokenBudget}
			}
			text = adapter.Render(s)
			estimated = EstimateTokens(text)
		}
	}

	return &CompiledPrompt{
		Text:            text,
		EstimatedTokens: estimated,
		SchemaID:        p.SchemaID,
		Meta:            meta,
	}, nil
}

// EstimateTokens approximates the token count of text. A four-characters-
// per-token heuristic keeps the estimate deterministic across runs.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// renderSchema states the declared output-format requirement so the model is
// told exactly how to structure its answer.
func renderSchema(p *ir.PromptIR, tmpl Template) string {
	out := fmt.Sprintf("Respond in the %q output schema.", p.SchemaID)
	if tmpl.OutputHint != "" {
		out += " " + tmpl.OutputHint
	}
	if len(p.OutputRequirements) > 0 {
		// Maps marshal with sorted keys, keeping the packet canonical.
		reqs, err := json.Marshal(p.OutputRequirements)
		if err == nil {
			out += "\nRequired output fields: " + string(reqs)
		}
	}
	return out
}
