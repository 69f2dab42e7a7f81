package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/probelab/capscan/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    trigger_by    TEXT NOT NULL,
    hostname      TEXT NOT NULL,
    total         INTEGER NOT NULL DEFAULT 0,
    supported     INTEGER NOT NULL DEFAULT 0,
    partial       INTEGER NOT NULL DEFAULT 0,
    unsupported   INTEGER NOT NULL DEFAULT 0,
    errors        INTEGER NOT NULL DEFAULT 0,
    overall_score INTEGER,
    abort_reason  TEXT,
    duration_ms   INTEGER,
    created_at    DATETIME NOT NULL,
    started_at    DATETIME,
    finished_at   DATETIME
)`

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    run_id      TEXT NOT NULL,
    probe_id    TEXT NOT NULL,
    name        TEXT NOT NULL,
    category    TEXT NOT NULL,
    status      TEXT NOT NULL,
    details     TEXT NOT NULL,
    score       INTEGER,
    duration_ms INTEGER NOT NULL,
    attempts    INTEGER NOT NULL,
    payload     TEXT,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, probe_id)
)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createRunsTable, createResultsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, status, trigger_by, hostname, total, supported, partial,
			unsupported, errors, overall_score, abort_reason, duration_ms,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Trigger, r.Hostname, r.Total, r.Supported, r.Partial,
		r.Unsupported, r.Errors, r.OverallScore, r.AbortReason, r.DurationMS,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, trigger_by, hostname, total, supported, partial,
			unsupported, errors, overall_score, abort_reason, duration_ms,
			created_at, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Status, &r.Trigger, &r.Hostname, &r.Total, &r.Supported, &r.Partial,
		&r.Unsupported, &r.Errors, &r.OverallScore, &r.AbortReason, &r.DurationMS,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC, along
// with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, trigger_by, hostname, total, supported, partial,
			unsupported, errors, overall_score, abort_reason, duration_ms,
			created_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(
			&r.ID, &r.Status, &r.Trigger, &r.Hostname, &r.Total, &r.Supported, &r.Partial,
			&r.Unsupported, &r.Errors, &r.OverallScore, &r.AbortReason, &r.DurationMS,
			&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus updates the status of a run after checking the transition
// is allowed. For terminal statuses it also sets finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	current, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidRunTransition(current.Status, status) {
		return ErrInvalidTransition
	}

	var result sql.Result
	if status == model.RunCompleted || status == model.RunCancelled || status == model.RunAborted {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else if status == model.RunRunning {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, started_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?",
			status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// FinishRun writes a run's terminal status, summary counters, and timestamps.
func (s *SQLiteStore) FinishRun(ctx context.Context, r *model.Run) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, supported = ?, partial = ?,
			unsupported = ?, errors = ?, overall_score = ?, abort_reason = ?,
			duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		r.Status, r.Total, r.Supported, r.Partial,
		r.Unsupported, r.Errors, r.OverallScore, r.AbortReason,
		r.DurationMS, r.FinishedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertResult stores one probe result for a run. The payload is serialized
// as JSON.
func (s *SQLiteStore) InsertResult(ctx context.Context, runID string, res model.Result) error {
	var payload any
	if res.Payload != nil {
		b, err := json.Marshal(res.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payload = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (
			run_id, probe_id, name, category, status, details, score,
			duration_ms, attempts, payload, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.ProbeID, res.Name, res.Category, res.Status, res.Details, res.Score,
		res.DurationMS, res.Attempts, payload, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetResults returns all results for a run in insertion order.
func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]model.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT probe_id, name, category, status, details, score,
			duration_ms, attempts, payload, started_at, finished_at
		FROM results WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var res model.Result
		var payload sql.NullString
		if err := rows.Scan(
			&res.ProbeID, &res.Name, &res.Category, &res.Status, &res.Details, &res.Score,
			&res.DurationMS, &res.Attempts, &payload, &res.StartedAt, &res.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &res.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return results, nil
}

// GetRunStats computes aggregate statistics over all runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM runs GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(overall_score), 0), COALESCE(AVG(duration_ms), 0)
		FROM runs WHERE overall_score IS NOT NULL`,
	).Scan(&stats.AvgScore, &stats.AvgDurationMS)
	if err != nil {
		return nil, fmt.Errorf("average score: %w", err)
	}

	return stats, nil
}
