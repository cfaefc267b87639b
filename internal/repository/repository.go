// Package repository defines the stored form of evaluation runs and their data access interface.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Run is one evaluation pass over a dataset.
type Run struct {
	ID        uuid.UUID
	Reranker  string
	Generator string
	Mode      string
	Status    string
	// Config is the run configuration as JSON.
	Config json.RawMessage
	// Summary is the end-of-run report as JSON, set when the run finishes.
	Summary      json.RawMessage
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Record is one stored output record of a run.
type Record struct {
	RunID     uuid.UUID
	Seq       int
	GUID      string
	Body      json.RawMessage
	CreatedAt time.Time
}

// RunRepository defines operations for run persistence
type RunRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	FinishRun(ctx context.Context, id uuid.UUID, status string, summary json.RawMessage, errMsg string) error

	// Record operations
	AppendRecord(ctx context.Context, runID uuid.UUID, seq int, guid string, body json.RawMessage) error
	ListRecords(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*Record, error)
}
