// Package store persists pipeline runs and their recorded stage snapshots.
// Two backends are provided: SQLite for single-node deployments and
// Postgres for shared ones.
package store

import (
	"context"

	"github.com/henrikfb/mailsift/internal/model"
)

// Store is the persistence surface used by the run recorder and the HTTP
// API. Payloads are stored as JSON text so both backends share a schema.
type Store interface {
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.AggregatedResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	AddSnapshot(ctx context.Context, snap *model.StageSnapshot) error
	ListSnapshots(ctx context.Context, runID string) ([]model.StageSnapshot, error)

	Close() error
}

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: run not found" }
