// Package postgres stores evaluation runs and their output records in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/IDEA-FinAI/RagLLaVA/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
	id            UUID PRIMARY KEY,
	reranker      TEXT NOT NULL,
	generator     TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL,
	config        JSONB NOT NULL,
	summary       JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS eval_records (
	run_id     UUID NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	guid       TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, seq)
);
`

// RunRepo implements repository.RunRepository
type RunRepo struct {
	db  dbtx
	now func() time.Time
}

// NewRunRepo creates a new run repository
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db.Pool, now: time.Now}
}

// EnsureSchema creates the run tables if they do not exist
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new run. A zero ID or start time is filled in.
func (r *RunRepo) CreateRun(ctx context.Context, run *repository.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now().UTC()
	}
	if run.Status == "" {
		run.Status = repository.RunRunning
	}
	config := run.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	query := `
		INSERT INTO eval_runs (id, reranker, generator, mode, status, config, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		run.ID, run.Reranker, run.Generator, run.Mode, run.Status, []byte(config),
		run.ErrorMessage, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	query := `
		SELECT id, reranker, generator, mode, status, config, summary, error_message, started_at, finished_at
		FROM eval_runs
		WHERE id = $1
	`
	var run repository.Run
	var config, summary []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Reranker, &run.Generator, &run.Mode, &run.Status,
		&config, &summary, &run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Config = config
	run.Summary = summary
	return &run, nil
}

// FinishRun marks a run finished or failed and stores its summary
func (r *RunRepo) FinishRun(ctx context.Context, id uuid.UUID, status string, summary json.RawMessage, errMsg string) error {
	var summaryArg any
	if len(summary) > 0 {
		summaryArg = []byte(summary)
	}

	query := `
		UPDATE eval_runs
		SET status = $2, summary = $3, error_message = $4, finished_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, summaryArg, errMsg, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendRecord stores one output record of a run
func (r *RunRepo) AppendRecord(ctx context.Context, runID uuid.UUID, seq int, guid string, body json.RawMessage) error {
	query := `
		INSERT INTO eval_records (run_id, seq, guid, body)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, runID, seq, guid, []byte(body)); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// ListRecords returns a run's records in sequence order
func (r *RunRepo) ListRecords(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*repository.Record, error) {
	query := `
		SELECT run_id, seq, guid, body, created_at
		FROM eval_records
		WHERE run_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*repository.Record
	for rows.Next() {
		var rec repository.Record
		var body []byte
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.GUID, &body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Body = body
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Ensure RunRepo implements repository.RunRepository
var _ repository.RunRepository = (*RunRepo)(nil)
