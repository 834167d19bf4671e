package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/metalagman/forma/internal/orchestrator"
)

// Store persists ledgers. It implements orchestrator.Recorder; the
// orchestrator is the single writer, so no internal locking is needed
// beyond SQLite's own.
type Store struct {
	db     *sql.DB
	docDir string
}

// NewStore creates a store. docDir is where sealed JSON documents land;
// empty disables document output.
func NewStore(db *sql.DB, docDir string) *Store {
	return &Store{db: db, docDir: docDir}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// RunStarted inserts the run record and a run_started event.
func (s *Store) RunStarted(ctx context.Context, l *orchestrator.Ledger) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin run start: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, task, status, started_at, phase_count)
		VALUES(?, ?, ?, ?, 0)`,
		l.RunID, l.Task, l.Status, l.StartedAt.Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := insertEvent(ctx, tx, l.RunID, "run_started", "run started"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run start: %w", err)
	}
	return nil
}

// PhaseCommitted upserts the ledger's decisions and responses and updates
// the run row. Writes are keyed by sequence so replays are idempotent.
func (s *Store) PhaseCommitted(ctx context.Context, l *orchestrator.Ledger) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin phase commit: %w", err)
	}
	if err := s.writeLedger(ctx, tx, l); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertEvent(ctx, tx, l.RunID, "phase_committed",
		fmt.Sprintf("%d responses recorded", len(l.Responses))); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit phase: %w", err)
	}
	return nil
}

// RunSealed finalizes the run row and writes the sealed JSON document.
func (s *Store) RunSealed(ctx context.Context, l *orchestrator.Ledger) error {
	docPath := ""
	if s.docDir != "" {
		path, err := s.writeDocument(l)
		if err != nil {
			return err
		}
		docPath = path
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin seal: %w", err)
	}
	if err := s.writeLedger(ctx, tx, l); err != nil {
		_ = tx.Rollback()
		return err
	}
	sealedAt := ""
	if l.SealedAt != nil {
		sealedAt = l.SealedAt.Format(time.RFC3339)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET sealed_at=?, doc_path=? WHERE run_id=?`,
		nullableString(sealedAt), nullableString(docPath), l.RunID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("seal run: %w", err)
	}
	if err := insertEvent(ctx, tx, l.RunID, "run_sealed", l.Status); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seal: %w", err)
	}
	return nil
}

func (s *Store) writeLedger(ctx context.Context, tx *sql.Tx, l *orchestrator.Ledger) error {
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, phase_count=?, final_output=?, error=? WHERE run_id=?`,
		l.Status, phaseCount(l), nullableString(l.FinalOutput), nullableString(l.Error), l.RunID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	for i, d := range l.Decisions {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO decisions(run_id, seq, from_state, to_state, reason, at)
			VALUES(?, ?, ?, ?, ?, ?)`,
			l.RunID, i+1, string(d.From), string(d.To), d.Reason, d.At.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}
	for i, r := range l.Responses {
		meta := ""
		if len(r.Metadata) > 0 {
			data, err := json.Marshal(r.Metadata)
			if err == nil {
				meta = string(data)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO responses(run_id, seq, phase_index, phase, role, confidence, risk_flags, output, metadata_json)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.RunID, i+1, r.PhaseIndex, r.Phase, r.Role, r.Confidence,
			nullableString(strings.Join(r.RiskFlags, ",")), nullableString(r.Output), nullableString(meta)); err != nil {
			return fmt.Errorf("insert response: %w", err)
		}
	}
	return nil
}

// writeDocument serializes the full ledger to a single JSON document.
func (s *Store) writeDocument(l *orchestrator.Ledger) (string, error) {
	if err := os.MkdirAll(s.docDir, 0o755); err != nil {
		return "", fmt.Errorf("create ledger dir: %w", err)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal ledger: %w", err)
	}
	path := filepath.Join(s.docDir, l.RunID+".json")
	// Sealed documents are read-only artifacts.
	if err := os.WriteFile(path, data, 0o444); err != nil {
		return "", fmt.Errorf("write ledger doc: %w", err)
	}
	return path, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, runID, typ, message string) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message) VALUES(?, ?, ?, ?, ?)`,
		runID, seq+1, ts, typ, message); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func phaseCount(l *orchestrator.Ledger) int {
	seen := 0
	for _, r := range l.Responses {
		if r.PhaseIndex+1 > seen {
			seen = r.PhaseIndex + 1
		}
	}
	return seen
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// RunSummary is one row of the runs listing.
type RunSummary struct {
	RunID      string
	Task       string
	Status     string
	StartedAt  string
	SealedAt   string
	PhaseCount int
}

// ListRuns returns runs newest-first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, task, status, started_at, COALESCE(sealed_at, ''), phase_count
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Task, &r.Status, &r.StartedAt, &r.SealedAt, &r.PhaseCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes sealed runs beyond keepLast, oldest first, along with their
// JSON documents. Returns the number of runs removed.
func (s *Store) Prune(ctx context.Context, keepLast int) (int, error) {
	if keepLast < 0 {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, COALESCE(doc_path, '') FROM runs
		WHERE sealed_at IS NOT NULL
		ORDER BY started_at DESC LIMIT -1 OFFSET ?`, keepLast)
	if err != nil {
		return 0, fmt.Errorf("select prunable runs: %w", err)
	}
	type victim struct{ id, doc string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.doc); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan prunable run: %w", err)
		}
		victims = append(victims, v)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, v := range victims {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, v.id); err != nil {
			return 0, fmt.Errorf("delete run %s: %w", v.id, err)
		}
		if v.doc != "" {
			_ = os.Remove(v.doc)
		}
	}
	return len(victims), nil
}
