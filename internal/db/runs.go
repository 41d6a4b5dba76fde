// Package db persists chat run records to Postgres. Persistence is
// optional; a nil writer disables it without touching callers.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/config"
)

// ChatRun is one completed workflow execution, terminal failures
// included.
type ChatRun struct {
	RunID        string        `db:"run_id"`
	SessionID    string        `db:"session_id"`
	Prompt       string        `db:"prompt"`
	Result       string        `db:"result"`
	Status       string        `db:"status"`
	Source       string        `db:"source"`
	RewriteCount int           `db:"rewrite_count"`
	Duration     time.Duration `db:"duration_ms"`
	StartedAt    time.Time     `db:"started_at"`
}

// RunWriter records chat runs.
type RunWriter struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRunWriter opens the database and verifies the connection. It
// returns (nil, nil) when persistence is disabled.
func NewRunWriter(cfg config.DatabaseConfig, logger *zap.Logger) (*RunWriter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	database, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(2)
	database.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &RunWriter{db: database, logger: logger}, nil
}

// NewRunWriterWithDB wraps an existing connection, for tests.
func NewRunWriterWithDB(database *sqlx.DB, logger *zap.Logger) *RunWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunWriter{db: database, logger: logger}
}

const insertRun = `
INSERT INTO chat_runs (run_id, session_id, prompt, result, status, source, rewrite_count, duration_ms, started_at)
VALUES (:run_id, :session_id, :prompt, :result, :status, :source, :rewrite_count, :duration_ms, :started_at)
ON CONFLICT (run_id) DO UPDATE SET
    result = EXCLUDED.result,
    status = EXCLUDED.status,
    source = EXCLUDED.source,
    rewrite_count = EXCLUDED.rewrite_count,
    duration_ms = EXCLUDED.duration_ms`

// Record upserts one chat run. The run ID is the conflict key so a
// retried activity overwrites rather than duplicates.
func (w *RunWriter) Record(ctx context.Context, run ChatRun) error {
	if w == nil {
		return nil
	}
	arg := map[string]any{
		"run_id":        run.RunID,
		"session_id":    run.SessionID,
		"prompt":        run.Prompt,
		"result":        run.Result,
		"status":        run.Status,
		"source":        run.Source,
		"rewrite_count": run.RewriteCount,
		"duration_ms":   run.Duration.Milliseconds(),
		"started_at":    run.StartedAt,
	}
	if _, err := w.db.NamedExecContext(ctx, insertRun, arg); err != nil {
		return fmt.Errorf("record chat run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns the newest runs for a session.
func (w *RunWriter) RecentRuns(ctx context.Context, sessionID string, limit int) ([]ChatRun, error) {
	if w == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows := []struct {
		RunID        string    `db:"run_id"`
		SessionID    string    `db:"session_id"`
		Prompt       string    `db:"prompt"`
		Result       string    `db:"result"`
		Status       string    `db:"status"`
		Source       string    `db:"source"`
		RewriteCount int       `db:"rewrite_count"`
		DurationMS   int64     `db:"duration_ms"`
		StartedAt    time.Time `db:"started_at"`
	}{}
	err := w.db.SelectContext(ctx, &rows,
		`SELECT run_id, session_id, prompt, result, status, source, rewrite_count, duration_ms, started_at
         FROM chat_runs WHERE session_id = $1 ORDER BY started_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load runs for session %s: %w", sessionID, err)
	}

	runs := make([]ChatRun, len(rows))
	for i, r := range rows {
		runs[i] = ChatRun{
			RunID:        r.RunID,
			SessionID:    r.SessionID,
			Prompt:       r.Prompt,
			Result:       r.Result,
			Status:       r.Status,
			Source:       r.Source,
			RewriteCount: r.RewriteCount,
			Duration:     time.Duration(r.DurationMS) * time.Millisecond,
			StartedAt:    r.StartedAt,
		}
	}
	return runs, nil
}

// Ping verifies connectivity for health checks.
func (w *RunWriter) Ping(ctx context.Context) error {
	if w == nil {
		return nil
	}
	return w.db.PingContext(ctx)
}

// Close releases the connection pool.
func (w *RunWriter) Close() error {
	if w == nil {
		return nil
	}
	return w.db.Close()
}
