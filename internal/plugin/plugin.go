// Package plugin implements the ordered, auditable transform chain over IRs.
//
// A transformer must not mutate its input. When no change is needed it
// returns the identical input object; when a change is needed it clones
// first and mutates the copy. The chain records exactly one transformation
// per applied mutation.
package plugin

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/forma/internal/ir"
)

// Transformer is the plugin contract, stable across the 1.x line.
type Transformer interface {
	// Name identifies the plugin in audit records.
	Name() string
	// Transform returns the result IR and a short change description.
	// Returning the input object unchanged means "no-op" and produces no
	// audit record; the description is ignored in that case.
	Transform(in *ir.PromptIR) (*ir.PromptIR, string, error)
}

// Transformation is an immutable audit record of one plugin mutation.
type Transformation struct {
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	BeforeHash  string    `json:"before_hash"`
	AfterHash   string    `json:"after_hash"`
	Plugin      string    `json:"plugin"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Stats counts chain outcomes for one Apply call. Plugins keep no hidden
// counters; everything observable is returned here.
type Stats struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Chain executes transformers strictly in registration order.
type Chain struct {
	transformers []Transformer
}

// NewChain validates and fixes the plugin order.
func NewChain(transformers ...Transformer) (*Chain, error) {
	seen := make(map[string]bool, len(transformers))
	for _, t := range transformers {
		if t.Name() == "" {
			return nil, fmt.Errorf("transformer with empty name")
		}
		if seen[t.Name()] {
			return nil, fmt.Errorf("duplicate transformer name %q", t.Name())
		}
		seen[t.Name()] = true
	}
	return &Chain{transformers: transformers}, nil
}

// DefaultChain returns the built-in chain: context digest then budget
// optimizer.
func DefaultChain() *Chain {
	chain, err := NewChain(NewContextDigest(DefaultDigestThreshold), NewBudgetOptimizer())
	if err != nil {
		// Built-in names are distinct; unreachable.
		panic(err)
	}
	return chain
}

// Len reports the number of registered transformers.
func (c *Chain) Len() int { return len(c.transformers) }

// Apply runs the chain over the IR. A failing plugin is logged and its
// pre-transform IR carried forward; one plugin's failure never aborts the
// chain. A plugin that returns a new object yields one audit record with
// before/after canonical hashes.
func (c *Chain) Apply(in *ir.PromptIR) (*ir.PromptIR, []Transformation, Stats) {
	current := in
	var records []Transformation
	var stats Stats

	for _, t := range c.transformers {
		beforeHash := current.Hash()
		out, desc, err := t.Transform(current)
		if err != nil {
			stats.Failed++
			log.Error().Err(err).Str("plugin", t.Name()).Str("ir_id", current.ID).Msg("plugin failed, carrying ir forward")
			continue
		}
		if out == nil || out == current {
			stats.Skipped++
			continue
		}
		stats.Applied++
		records = append(records, Transformation{
			Kind:        t.Name(),
			Description: desc,
			BeforeHash:  beforeHash,
			AfterHash:   out.Hash(),
			Plugin:      t.Name(),
			AppliedAt:   time.Now().UTC(),
		})
		current = out
	}
	return current, records, stats
}
