// Package state records the history of reconciliation runs in SQLite.
//
// The history is informational: the firewall itself is the source of truth
// and the snapshot file holds the applied set. A failure to record a run
// never fails the run.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/originguard/internal/clock"
)

// DefaultKeep is the number of runs kept by Prune when none is configured.
const DefaultKeep = 500

// Run is one recorded reconciliation.
type Run struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Backend   string
	DryRun    bool
	Success   bool
	Phase     string // phase reached, or the failed phase
	Error     string
	Source    string // URL that produced the edge list
	V4        int
	V6        int
	Added     int
	Removed   int
}

// Options configures the history store.
type Options struct {
	Path    string      // Database file path (":memory:" for in-memory)
	WALMode bool        // Enable WAL mode for better concurrency
	Keep    int         // Runs kept after each Record; 0 keeps DefaultKeep
	Clock   clock.Clock // Optional: time source for pruning logs
}

// DefaultOptions returns sensible defaults.
func DefaultOptions(path string) Options {
	return Options{
		Path:    path,
		WALMode: true,
		Keep:    DefaultKeep,
	}
}

// History is a SQLite-backed run history.
type History struct {
	db    *sql.DB
	keep  int
	clock clock.Clock
}

// Open opens or creates the history database.
func Open(opts Options) (*History, error) {
	dsn := opts.Path
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		if opts.WALMode {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clk := clock.Or(opts.Clock)
	keep := opts.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}

	h := &History{db: db, keep: keep, clock: clk}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			backend     TEXT NOT NULL,
			dry_run     INTEGER NOT NULL,
			success     INTEGER NOT NULL,
			phase       TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			v4          INTEGER NOT NULL DEFAULT 0,
			v6          INTEGER NOT NULL DEFAULT 0,
			added       INTEGER NOT NULL DEFAULT 0,
			removed     INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Record stores a run and prunes the oldest runs beyond the keep limit.
func (h *History) Record(ctx context.Context, r Run) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, backend, dry_run, success, phase, error, source, v4, v6, added, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(), r.Backend, r.DryRun, r.Success,
		r.Phase, r.Error, r.Source, r.V4, r.V6, r.Added, r.Removed)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	_, err = h.Prune(ctx, h.keep)
	return err
}

// Recent returns up to n runs, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, backend, dry_run, success, phase, error, source, v4, v6, added, removed
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                   Run
			startedMs, duration int64
		)
		if err := rows.Scan(&r.ID, &startedMs, &duration, &r.Backend, &r.DryRun, &r.Success,
			&r.Phase, &r.Error, &r.Source, &r.V4, &r.V6, &r.Added, &r.Removed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(duration) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastSuccess returns the newest successful, non dry-run run, or nil.
func (h *History) LastSuccess(ctx context.Context) (*Run, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, started_at FROM runs WHERE success = 1 AND dry_run = 0
		ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	var (
		r         Run
		startedMs int64
	)
	if err := row.Scan(&r.ID, &startedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	r.StartedAt = time.UnixMilli(startedMs)
	return &r, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (h *History) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Age returns how long ago the newest successful run started.
func (h *History) Age(ctx context.Context) (time.Duration, bool, error) {
	last, err := h.LastSuccess(ctx)
	if err != nil || last == nil {
		return 0, false, err
	}
	return h.clock.Since(last.StartedAt), true, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
