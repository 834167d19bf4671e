// Package ledger persists run ledgers: a SQLite store for querying plus one
// sealed JSON document per run as the durable artifact.
package ledger

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// pragma is one connection setting. Optional pragmas degrade with a warning
// instead of failing the open; filesystems without WAL support still get a
// working ledger.
type pragma struct {
	stmt     string
	required bool
}

var pragmas = []pragma{
	{stmt: "PRAGMA foreign_keys=ON;", required: true},
	{stmt: "PRAGMA journal_mode=WAL;"},
	{stmt: "PRAGMA busy_timeout=5000;", required: true},
}

// Open opens the ledger database at path, applies the pragmas the store
// depends on and runs pending migrations. The pool is capped at a single
// connection: event sequence numbers are assigned with MAX(seq)+1, which is
// only safe when writers are serialized.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			if !p.required {
				log.Warn().Err(err).Str("pragma", p.stmt).Msg("optional pragma not applied")
				continue
			}
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p.stmt, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
