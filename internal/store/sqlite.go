package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/henrikfb/mailsift/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	email_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	payload     TEXT,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, recorded_at);
`

// SQLiteStore persists runs in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// Serialized access keeps the driver happy under concurrent recorders.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "store: set pragmas")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, email_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.EmailID, string(run.Status), formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return eris.Wrap(err, "store: create run")
	}
	return nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), runID,
	)
	if err != nil {
		return eris.Wrap(err, "store: update run status")
	}
	return nil
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.AggregatedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), string(payload), formatTime(time.Now()), runID,
	)
	if err != nil {
		return eris.Wrap(err, "store: update run result")
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email_id, status, result, created_at, updated_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email_id, status, result, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
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

func (s *SQLiteStore) AddSnapshot(ctx context.Context, snap *model.StageSnapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return eris.Wrap(err, "store: marshal snapshot payload")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, run_id, stage, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.RunID, snap.Stage, string(payload), formatTime(snap.RecordedAt),
	)
	if err != nil {
		return eris.Wrap(err, "store: add snapshot")
	}
	return nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, runID string) ([]model.StageSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, payload, recorded_at FROM snapshots WHERE run_id = ? ORDER BY recorded_at ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list snapshots")
	}
	defer func() { _ = rows.Close() }()

	var snaps []model.StageSnapshot
	for rows.Next() {
		var (
			snap       model.StageSnapshot
			payload    sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&snap.ID, &snap.RunID, &snap.Stage, &payload, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan snapshot")
		}
		if payload.Valid && payload.String != "" {
			var v any
			if err := json.Unmarshal([]byte(payload.String), &v); err == nil {
				snap.Payload = v
			}
		}
		snap.RecordedAt = parseTime(recordedAt)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate snapshots")
	}
	return snaps, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run       model.Run
		status    string
		result    sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&run.ID, &run.EmailID, &status, &result, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if result.Valid && result.String != "" {
		var agg model.AggregatedResult
		if err := json.Unmarshal([]byte(result.String), &agg); err == nil {
			run.Result = &agg
		}
	}
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
