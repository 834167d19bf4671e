package ir

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by the Builder.
const (
	DefaultPriority    = 5
	DefaultTemperature = 0.7
	DefaultSchemaID    = "default"
)

// Builder constructs a PromptIR fluently. Role and intent are fixed at
// creation; everything else defaults per the IR contract.
type Builder struct {
	ir PromptIR
}

// New starts a builder for the given role and intent.
func New(role, intent string) *Builder {
	return &Builder{ir: PromptIR{
		Role:               role,
		Intent:             intent,
		Phase:              PhaseImplementation,
		OutputRequirements: map[string]any{},
		Priority:           DefaultPriority,
		TemperatureHint:    DefaultTemperature,
		SchemaID:           DefaultSchemaID,
		IRVersion:          Version,
		Metadata:           map[string]any{},
	}}
}

// Phase sets the workflow phase.
func (b *Builder) Phase(p Phase) *Builder {
	b.ir.Phase = p
	return b
}

// ContextRefs sets the ordered context references.
func (b *Builder) ContextRefs(refs ...string) *Builder {
	b.ir.ContextRefs = append([]string(nil), refs...)
	return b
}

// Constraints sets the ordered constraint list.
func (b *Builder) Constraints(cs ...string) *Builder {
	b.ir.Constraints = append([]string(nil), cs...)
	return b
}

// OutputRequirement records one output requirement entry.
func (b *Builder) OutputRequirement(key string, value any) *Builder {
	b.ir.OutputRequirements[key] = value
	return b
}

// TokenBudget sets the token ceiling for compilation.
func (b *Builder) TokenBudget(n int) *Builder {
	b.ir.TokenBudget = n
	return b
}

// Priority sets the task priority (1-10).
func (b *Builder) Priority(n int) *Builder {
	b.ir.Priority = n
	return b
}

// ModelHint sets the preferred model.
func (b *Builder) ModelHint(hint string) *Builder {
	b.ir.ModelHint = hint
	return b
}

// TemperatureHint sets the sampling temperature hint.
func (b *Builder) TemperatureHint(t float64) *Builder {
	b.ir.TemperatureHint = t
	return b
}

// SchemaID selects the output schema the model response must satisfy.
func (b *Builder) SchemaID(id string) *Builder {
	b.ir.SchemaID = id
	return b
}

// Meta records one metadata entry. Keys are namespaced by convention.
func (b *Builder) Meta(key string, value any) *Builder {
	b.ir.Metadata[key] = value
	return b
}

// Build validates the accumulated fields and returns the finished IR.
func (b *Builder) Build() (*PromptIR, error) {
	if b.ir.Role == "" {
		return nil, &MalformedIRError{Field: "role", Reason: "must not be empty"}
	}
	if b.ir.Intent == "" {
		return nil, &MalformedIRError{Field: "intent", Reason: "must not be empty"}
	}
	if b.ir.TokenBudget < 0 {
		return nil, &MalformedIRError{Field: "token_budget", Reason: fmt.Sprintf("must be >= 0, got %d", b.ir.TokenBudget)}
	}
	if b.ir.Priority < 1 || b.ir.Priority > 10 {
		return nil, &MalformedIRError{Field: "priority", Reason: fmt.Sprintf("must be in 1..10, got %d", b.ir.Priority)}
	}
	for i, ref := range b.ir.ContextRefs {
		if ref == "" {
			return nil, &MalformedIRError{Field: "context_refs", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	out := b.ir.Clone()
	out.CreatedAt = time.Now().UTC()
	out.ID = uuid.NewString()
	return out, nil
}
