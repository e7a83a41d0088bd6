// Package history persists completed bridge operations to SQLite so past
// runs can be listed and audited. A "none" backend satisfies the same
// interface with no storage at all.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Run is one recorded bridge operation.
type Run struct {
	ID         string       `json:"id"`
	Op         string       `json:"op"`
	Params     etc.ParamSet `json:"params"`
	TargetSNR  float64      `json:"target_snr,omitempty"`
	SNR        float64      `json:"snr"`
	Evals      int          `json:"evals"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Store records runs and serves recent ones.
type Store interface {
	Record(ctx context.Context, r Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	params      TEXT NOT NULL,
	target_snr  REAL NOT NULL,
	snr         REAL NOT NULL,
	evals       INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
`

// SQLite is the durable Store backed by a single database file.
type SQLite struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. Runs older than retention are removed by EvictBefore or the
// Run loop; a zero retention keeps everything.
func OpenSQLite(path string, retention time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &SQLite{db: db, retention: retention, now: time.Now}, nil
}

// Record inserts one run. A missing ID is filled with a fresh UUID.
func (s *SQLite) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("history: marshal params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, op, params, target_snr, snr, evals, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Op, string(params), r.TargetSNR, r.SNR, r.Evals, r.DurationMS, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, params, target_snr, snr, evals, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r      Run
			params string
		)
		if err := rows.Scan(&r.ID, &r.Op, &params, &r.TargetSNR, &r.SNR, &r.Evals, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("history: unmarshal params for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of stored runs.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count runs: %w", err)
	}
	return n, nil
}

// EvictBefore deletes runs created before cutoff and returns the count removed.
func (s *SQLite) EvictBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: evict runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Run applies the retention policy hourly until ctx is cancelled. With a
// zero retention it blocks without touching the database.
func (s *SQLite) Run(ctx context.Context) {
	if s.retention <= 0 {
		<-ctx.Done()
		return
	}

	t := time.NewTicker(time.Hour)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.EvictBefore(ctx, now.Add(-s.retention))
			if err != nil {
				slog.Error("history: retention sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("history: evicted old runs", "count", n)
			}
		}
	}
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Discard is a Store that remembers nothing, used when history is disabled.
type Discard struct{}

func (Discard) Record(context.Context, Run) error          { return nil }
func (Discard) Recent(context.Context, int) ([]Run, error) { return nil, nil }
func (Discard) Count(context.Context) (int, error)         { return 0, nil }
func (Discard) Close() error                               { return nil }
