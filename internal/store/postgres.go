package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/henrikfb/mailsift/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	email_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	payload     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, recorded_at);
`

// pgxQuerier is the subset of pgxpool.Pool the store uses. pgxmock
// satisfies it in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists runs in Postgres.
type PostgresStore struct {
	pool pgxQuerier
}

// NewPostgresStore connects to the database at dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool or mock.
func NewPostgresStoreWithPool(pool pgxQuerier) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, email_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.EmailID, string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "store: create run")
	}
	return nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "store: update run status")
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.AggregatedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		string(status), payload, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "store: update run result")
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email_id, status, result, created_at, updated_at FROM runs WHERE id = $1`, runID)
	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, email_id, status, result, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate runs")
	}
	return runs, nil
}

func (s *PostgresStore) AddSnapshot(ctx context.Context, snap *model.StageSnapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return eris.Wrap(err, "store: marshal snapshot payload")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, run_id, stage, payload, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.RunID, snap.Stage, payload, snap.RecordedAt,
	)
	if err != nil {
		return eris.Wrap(err, "store: add snapshot")
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, runID string) ([]model.StageSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, stage, payload, recorded_at FROM snapshots WHERE run_id = $1 ORDER BY recorded_at ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list snapshots")
	}
	defer rows.Close()

	var snaps []model.StageSnapshot
	for rows.Next() {
		var (
			snap    model.StageSnapshot
			payload []byte
		)
		if err := rows.Scan(&snap.ID, &snap.RunID, &snap.Stage, &payload, &snap.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan snapshot")
		}
		if len(payload) > 0 {
			var v any
			if err := json.Unmarshal(payload, &v); err == nil {
				snap.Payload = v
			}
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate snapshots")
	}
	return snaps, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var (
		run    model.Run
		status string
		result []byte
	)
	if err := row.Scan(&run.ID, &run.EmailID, &status, &result, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if len(result) > 0 {
		var agg model.AggregatedResult
		if err := json.Unmarshal(result, &agg); err == nil {
			run.Result = &agg
		}
	}
	return &run, nil
}
