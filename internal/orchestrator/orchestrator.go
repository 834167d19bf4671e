package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/metalagman/forma/internal/logging"
)

// Defaults for orchestration config.
const (
	DefaultMaxPhases           = 5
	DefaultWorkers             = 5
	DefaultConfidenceThreshold = 0.85
)

// Config bounds a run.
type Config struct {
	MaxPhases           int
	Workers             int
	ConfidenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxPhases <= 0 {
		c.MaxPhases = DefaultMaxPhases
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	return c
}

// Orchestrator sequences phases for a task. All collaborators are injected.
type Orchestrator struct {
	planner  Planner
	runner   AgentRunner
	recorder Recorder
	cfg      Config
}

// New builds an orchestrator. A nil recorder discards ledger writes.
func New(planner Planner, runner AgentRunner, recorder Recorder, cfg Config) *Orchestrator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Orchestrator{planner: planner, runner: runner, recorder: recorder, cfg: cfg.withDefaults()}
}

// Run drives the state machine for one task. The returned ledger is sealed:
// it reflects the run up to termination, error or cancellation.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Ledger, error) {
	ledger := &Ledger{
		RunID:     newRunID(),
		Task:      task,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	state := StateInit

	state = o.transition(ledger, state, StatePlan, "ledger created, run id assigned")
	if err := o.recorder.RunStarted(ctx, ledger); err != nil {
		return o.fail(ctx, ledger, state, fmt.Errorf("record run start: %w", err))
	}

	plan, err := o.planner.Plan(ctx, task)
	if err != nil {
		return o.fail(ctx, ledger, state, fmt.Errorf("plan: %w", err))
	}
	if len(plan) == 0 {
		return o.fail(ctx, ledger, state, fmt.Errorf("planner returned no phases"))
	}
	ledger.Phases = plan

	state = o.transition(ledger, state, StateExecutePhase,
		fmt.Sprintf("phase plan obtained (%d phases)", len(plan)))

	executed := 0
	for {
		phase := plan[min(executed, len(plan)-1)]

		responses := o.executePhase(ctx, executed, phase)
		ledger.Responses = append(ledger.Responses, responses...)

		state = o.transition(ledger, state, StateSynthesize,
			fmt.Sprintf("phase %q: all %d agents recorded", phase.Name, len(responses)))
		ledger.FinalOutput = synthesize(phase, responses)

		state = o.transition(ledger, state, StateValidate, "phase outputs combined")
		executed++

		if err := o.recorder.PhaseCommitted(ctx, ledger); err != nil {
			return o.fail(ctx, ledger, state, fmt.Errorf("record phase: %w", err))
		}
		if ctx.Err() != nil {
			// Cancellation keeps the ledger consistent as of the last
			// completed phase.
			o.transition(ledger, state, StateTerminate, "run cancelled")
			o.seal(ctx, ledger, "cancelled")
			return ledger, ctx.Err()
		}

		threshold := phase.ConfidenceThreshold
		if threshold <= 0 {
			threshold = o.cfg.ConfidenceThreshold
		}
		terminate, reason := terminationCheck(responses, threshold, executed, o.cfg.MaxPhases)
		if terminate {
			o.transition(ledger, state, StateTerminate, reason)
			o.seal(ctx, ledger, "completed")
			return ledger, nil
		}
		state = o.transition(ledger, state, StateExecutePhase, reason)
	}
}

// executePhase fans one task per role out to a bounded worker pool and
// blocks until every worker has produced a response or a recorded failure.
// One slow or failed agent does not poison the phase.
func (o *Orchestrator) executePhase(ctx context.Context, index int, phase Phase) []AgentResponse {
	responses := make([]AgentResponse, len(phase.Roles))

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i, role := range phase.Roles {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					responses[i] = failedResponse(index, phase, role, fmt.Errorf("agent panicked: %v", r))
				}
			}()
			resp, err := o.runner.Execute(ctx, phase, role)
			if err != nil {
				log.Warn().Err(err).Str("phase", phase.Name).Str("role", role).Msg("agent failed")
				responses[i] = failedResponse(index, phase, role, err)
				return nil
			}
			resp.PhaseIndex = index
			resp.Phase = phase.Name
			resp.Role = role
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// failedResponse records an agent failure without raising it.
func failedResponse(index int, phase Phase, role string, err error) AgentResponse {
	return AgentResponse{
		PhaseIndex: index,
		Phase:      phase.Name,
		Role:       role,
		Confidence: 0,
		RiskFlags:  []string{"agent_error"},
		Metadata:   map[string]any{"error": err.Error()},
	}
}

// synthesize combines per-agent outputs into one phase output, in roster
// order so the result is deterministic.
func synthesize(phase Phase, responses []AgentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", phase.Name)
	for _, r := range responses {
		if r.Output == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", r.Role, r.Output)
	}
	return b.String()
}

func (o *Orchestrator) transition(l *Ledger, from, to State, reason string) State {
	l.Decisions = append(l.Decisions, Decision{
		From:   from,
		To:     to,
		Reason: reason,
		At:     time.Now().UTC(),
	})
	logger := logging.ForRun(l.RunID)
	logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("state transition")
	return to
}

// fail moves the run to the terminal ERROR state with the captured
// diagnostic and seals the partial ledger.
func (o *Orchestrator) fail(ctx context.Context, l *Ledger, from State, err error) (*Ledger, error) {
	o.transition(l, from, StateError, err.Error())
	l.Error = err.Error()
	o.seal(ctx, l, "error")
	return l, err
}

func (o *Orchestrator) seal(ctx context.Context, l *Ledger, status string) {
	now := time.Now().UTC()
	l.Status = status
	l.SealedAt = &now
	logger := logging.ForRun(l.RunID)
	if err := o.recorder.RunSealed(ctx, l); err != nil {
		logger.Error().Err(err).Msg("failed to seal ledger")
	}
	logger.Info().
		Str("status", status).
		Int("phases", len(l.Phases)).
		Int("responses", len(l.Responses)).
		Dur("duration", now.Sub(l.StartedAt)).
		Msg("run finished")
}

func newRunID() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), hex.EncodeToString(buf))
}
