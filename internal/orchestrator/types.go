// Package orchestrator drives a multi-phase run through a fixed state
// machine. Termination is decided by arithmetic rules over recorded
// responses, never by model judgment.
package orchestrator

import (
	"context"
	"time"
)

// State names a node of the run state machine.
type State string

// Run states.
const (
	StateInit         State = "INIT"
	StatePlan         State = "PLAN"
	StateExecutePhase State = "EXECUTE_PHASE"
	StateSynthesize   State = "SYNTHESIZE"
	StateValidate     State = "VALIDATE"
	StateTerminate    State = "TERMINATE"
	StateError        State = "ERROR"
)

// Phase names the participating roles, their brief and the confidence bar a
// phase must clear to let the run terminate.
type Phase struct {
	Name                string   `json:"name"`
	Brief               string   `json:"brief"`
	Roles               []string `json:"roles"`
	ContextRefs         []string `json:"context_refs,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// AgentResponse is one agent's recorded result for a phase. Failures are
// recorded, not raised: a failed or timed-out agent yields confidence 0 and
// a risk flag without poisoning its siblings.
type AgentResponse struct {
	PhaseIndex int            `json:"phase_index"`
	Phase      string         `json:"phase"`
	Role       string         `json:"role"`
	Output     string         `json:"output"`
	Confidence float64        `json:"confidence"`
	RiskFlags  []string       `json:"risk_flags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Decision is the timestamped record of one state transition.
type Decision struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Ledger aggregates a full run and is its durable artifact. The orchestrator
// is its single writer; workers never touch it.
type Ledger struct {
	RunID       string          `json:"run_id"`
	Task        string          `json:"task"`
	Status      string          `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	SealedAt    *time.Time      `json:"sealed_at,omitempty"`
	Phases      []Phase         `json:"phases"`
	Responses   []AgentResponse `json:"responses"`
	Decisions   []Decision      `json:"decisions"`
	FinalOutput string          `json:"final_output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Planner is the external planning collaborator: it turns a task into an
// ordered phase list.
type Planner interface {
	Plan(ctx context.Context, task string) ([]Phase, error)
}

// AgentRunner executes one agent's turn within a phase. Implementations own
// the IR path (governance, plugins, compilation, the model call and output
// validation).
type AgentRunner interface {
	Execute(ctx context.Context, phase Phase, role string) (AgentResponse, error)
}

// Recorder persists the ledger at run boundaries. The orchestrator calls it
// from a single goroutine.
type Recorder interface {
	RunStarted(ctx context.Context, l *Ledger) error
	PhaseCommitted(ctx context.Context, l *Ledger) error
	RunSealed(ctx context.Context, l *Ledger) error
}

// NopRecorder discards ledger writes. Used when persistence is not wired.
type NopRecorder struct{}

func (NopRecorder) RunStarted(context.Context, *Ledger) error     { return nil }
func (NopRecorder) PhaseCommitted(context.Context, *Ledger) error { return nil }
func (NopRecorder) RunSealed(context.Context, *Ledger) error      { return nil }
