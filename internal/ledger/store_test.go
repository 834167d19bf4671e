package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/forma/internal/orchestrator"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "forma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, filepath.Join(dir, "runs"))
}

func testLedger(runID string, startedAt time.Time) *orchestrator.Ledger {
	return &orchestrator.Ledger{
		RunID:     runID,
		Task:      "test task",
		Status:    "running",
		StartedAt: startedAt,
		Phases: []orchestrator.Phase{
			{Name: "implementation", Roles: []string{"coder"}},
		},
	}
}

func seal(l *orchestrator.Ledger, status string) {
	now := time.Now().UTC()
	l.Status = status
	l.SealedAt = &now
}

func TestStoreFullRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := testLedger("20260829-120000-abc123", time.Now().UTC())
	require.NoError(t, s.RunStarted(ctx, l))

	l.Decisions = append(l.Decisions,
		orchestrator.Decision{From: orchestrator.StateInit, To: orchestrator.StatePlan, Reason: "start", At: time.Now().UTC()},
		orchestrator.Decision{From: orchestrator.StatePlan, To: orchestrator.StateExecutePhase, Reason: "planned", At: time.Now().UTC()},
	)
	l.Responses = append(l.Responses, orchestrator.AgentResponse{
		PhaseIndex: 0,
		Phase:      "implementation",
		Role:       "coder",
		Output:     "done",
		Confidence: 0.9,
		RiskFlags:  []string{"flagged_once"},
		Metadata:   map[string]any{"tokens_used": 42},
	})
	l.FinalOutput = "# implementation\n\n## coder\ndone\n"
	require.NoError(t, s.PhaseCommitted(ctx, l))

	seal(l, "completed")
	require.NoError(t, s.RunSealed(ctx, l))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, l.RunID, runs[0].RunID)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, 1, runs[0].PhaseCount)
	assert.NotEmpty(t, runs[0].SealedAt)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM decisions WHERE run_id=?`, l.RunID).Scan(&count))
	assert.Equal(t, 2, count)
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM responses WHERE run_id=?`, l.RunID).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM events WHERE run_id=?`, l.RunID).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestStoreSealWritesDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := testLedger("20260829-120001-def456", time.Now().UTC())
	require.NoError(t, s.RunStarted(ctx, l))
	seal(l, "completed")
	require.NoError(t, s.RunSealed(ctx, l))

	docPath := filepath.Join(s.docDir, l.RunID+".json")
	data, err := os.ReadFile(docPath)
	require.NoError(t, err)

	var decoded orchestrator.Ledger
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, l.RunID, decoded.RunID)
	assert.Equal(t, "completed", decoded.Status)
	assert.Equal(t, "test task", decoded.Task)
	require.Len(t, decoded.Phases, 1)
	assert.Equal(t, "implementation", decoded.Phases[0].Name)
}

func TestStorePhaseCommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := testLedger("20260829-120002-aaa111", time.Now().UTC())
	require.NoError(t, s.RunStarted(ctx, l))

	l.Decisions = append(l.Decisions, orchestrator.Decision{
		From: orchestrator.StateInit, To: orchestrator.StatePlan, Reason: "start", At: time.Now().UTC(),
	})
	l.Responses = append(l.Responses, orchestrator.AgentResponse{
		PhaseIndex: 0, Phase: "p", Role: "coder", Output: "x", Confidence: 0.5,
	})
	require.NoError(t, s.PhaseCommitted(ctx, l))
	require.NoError(t, s.PhaseCommitted(ctx, l))

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM decisions WHERE run_id=?`, l.RunID).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM responses WHERE run_id=?`, l.RunID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		l := testLedger(id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.RunStarted(ctx, l))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-mid", runs[1].RunID)
}

func TestStorePrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	ids := []string{"run-1", "run-2", "run-3", "run-4"}
	for i, id := range ids {
		l := testLedger(id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.RunStarted(ctx, l))
		seal(l, "completed")
		require.NoError(t, s.RunSealed(ctx, l))
	}

	removed, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-3", runs[1].RunID)

	// The pruned runs' documents are gone along with their rows.
	_, err = os.Stat(filepath.Join(s.docDir, "run-1.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.docDir, "run-4.json"))
	assert.NoError(t, err)
}

func TestStorePruneKeepsUnsealedRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := testLedger("run-open", time.Now().UTC())
	require.NoError(t, s.RunStarted(ctx, l))

	removed, err := s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
