package modelclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metalagman/ainvoke"

	"github.com/metalagman/forma/internal/logging"
)

// execCaller invokes a CLI agent through ainvoke, treating its stdout as the
// model response. Useful for self-hosted or sandboxed agents.
type execCaller struct {
	runner ainvoke.Runner
	cmd    []string
	runDir string
}

func newExecCaller(_ context.Context, cfg Config) (Caller, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec provider requires cmd")
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{Cmd: cfg.Cmd})
	if err != nil {
		return nil, fmt.Errorf("init exec runner: %w", err)
	}
	return &execCaller{runner: runner, cmd: cfg.Cmd, runDir: cfg.RunDir}, nil
}

func (e *execCaller) Provider() string  { return "exec" }
func (e *execCaller) ModelName() string { return strings.Join(e.cmd, " ") }

func (e *execCaller) Call(ctx context.Context, messages []Message, _ float64, _ int) (Response, error) {
	var system, input strings.Builder
	for _, m := range messages {
		if m.Role == "system" {
			system.WriteString(m.Content)
			system.WriteString("\n")
			continue
		}
		input.WriteString(m.Content)
		input.WriteString("\n")
	}

	inv := ainvoke.Invocation{
		RunDir:       e.runDir,
		SystemPrompt: system.String(),
		Input:        input.String(),
	}
	// Agent output is mirrored to the console only in debug mode; the
	// response itself always comes from the captured stdout.
	var stdout, stderr io.Writer = io.Discard, io.Discard
	if logging.DebugEnabled() {
		stdout, stderr = os.Stderr, os.Stderr
	}
	out, _, exitCode, err := e.runner.Run(ctx, inv, ainvoke.WithStdout(stdout), ainvoke.WithStderr(stderr))
	if err != nil {
		return Response{}, fmt.Errorf("exec agent: %w", err)
	}
	if exitCode != 0 {
		return Response{}, fmt.Errorf("exec agent exited with code %d", exitCode)
	}
	return Response{Content: string(out)}, nil
}
