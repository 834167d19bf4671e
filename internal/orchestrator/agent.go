package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/forma/internal/ir"
	"github.com/metalagman/forma/internal/modelclient"
	"github.com/metalagman/forma/internal/pipeline"
	"github.com/metalagman/forma/internal/validator"
)

// PipelineRunner is the default AgentRunner: it takes one agent's turn
// through governance, plugins, compilation, the model call and output
// validation. Each turn builds its own IR, so concurrent turns share no
// mutable IR state.
type PipelineRunner struct {
	pipeline  *pipeline.Pipeline
	validator *validator.Validator
	caller    modelclient.Caller
	budget    int
}

// NewPipelineRunner wires the runner. budget is the pre-optimization token
// budget each turn starts from; zero disables budget enforcement.
func NewPipelineRunner(p *pipeline.Pipeline, v *validator.Validator, caller modelclient.Caller, budget int) *PipelineRunner {
	return &PipelineRunner{pipeline: p, validator: v, caller: caller, budget: budget}
}

// Execute implements AgentRunner. Policy denial and compilation failure are
// recorded outcomes, not raised errors; only infrastructure faults return a
// non-nil error.
func (r *PipelineRunner) Execute(ctx context.Context, phase Phase, role string) (AgentResponse, error) {
	irPhase, err := ir.ParsePhase(phase.Name)
	if err != nil {
		irPhase = ir.PhaseImplementation
	}
	prompt, err := ir.New(role, phase.Brief).
		Phase(irPhase).
		ContextRefs(phase.ContextRefs...).
		TokenBudget(r.budget).
		Build()
	if err != nil {
		return AgentResponse{}, fmt.Errorf("build ir: %w", err)
	}

	processed, approved, violations := r.pipeline.Process(prompt)
	if !approved {
		// A deterministic policy denial, distinguishable from an error.
		return AgentResponse{
			Output:     "",
			Confidence: 0,
			RiskFlags:  []string{"policy_denied"},
			Metadata:   map[string]any{"violations": violations, "denied": true},
		}, nil
	}

	packet, err := r.pipeline.Compile(ctx, processed)
	if err != nil {
		// Budget that cannot be met is fatal for this turn only.
		return AgentResponse{
			Confidence: 0,
			RiskFlags:  []string{"compile_failed"},
			Metadata:   map[string]any{"error": err.Error()},
		}, nil
	}

	temperature := r.pipeline.Compiler().Templates().TemperatureFor(processed)
	messages := []modelclient.Message{
		{Role: "user", Content: packet.Text},
	}
	resp, err := r.caller.Call(ctx, messages, temperature, processed.TokenBudget)
	if err != nil {
		return AgentResponse{}, fmt.Errorf("model call (%s/%s): %w", r.caller.Provider(), r.caller.ModelName(), err)
	}

	report := r.validator.Validate(resp.Content, processed.SchemaID)
	out := resp.Content
	if report.Repaired != "" {
		out = report.Repaired
	}

	response := AgentResponse{
		Output:     out,
		Confidence: confidenceFrom(report),
		RiskFlags:  riskFlagsFrom(report),
		Metadata: map[string]any{
			"ir_id":            processed.ID,
			"estimated_tokens": packet.EstimatedTokens,
			"tokens_used":      resp.TokensUsed,
			"adapter":          packet.Meta.Adapter,
			"validation":       string(report.Status),
		},
	}
	if len(violations) > 0 {
		// Flagged-but-approved: the violations ride along for the record.
		response.Metadata["violations"] = violations
	}
	log.Debug().Str("role", role).Str("phase", phase.Name).Str("status", string(report.Status)).Msg("agent turn done")
	return response, nil
}

// confidenceFrom maps the agent's self-reported confidence (when present in
// a structured payload) into [0,1], with fixed fallbacks per validation
// outcome.
func confidenceFrom(report validator.Report) float64 {
	if c, ok := report.Payload["confidence"]; ok {
		if f, ok := c.(float64); ok {
			return max(0, min(1, f))
		}
	}
	switch report.Status {
	case validator.StatusValid:
		if report.Repaired != "" {
			return 0.6
		}
		return 0.8
	case validator.StatusNeedsRepair:
		return 0.3
	default:
		return 0
	}
}

func riskFlagsFrom(report validator.Report) []string {
	var flags []string
	if raw, ok := report.Payload["risk_flags"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				flags = append(flags, s)
			}
		}
	}
	if report.Status == validator.StatusInvalid {
		flags = append(flags, "invalid_output")
	}
	return flags
}
