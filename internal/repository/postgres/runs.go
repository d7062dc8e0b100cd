package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/webprobe/webprobe/internal/domain"
)

// ErrRunNotFound is returned when no run matches the query.
var ErrRunNotFound = errors.New("run not found")

// RunRepository persists run results.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// runRow represents the database row structure
type runRow struct {
	RunID       string    `db:"run_id"`
	PlanID      string    `db:"plan_id"`
	TargetURL   string    `db:"target_url"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
	Total       int       `db:"total"`
	Passed      int       `db:"passed"`
	Failed      int       `db:"failed"`
	Skipped     int       `db:"skipped"`
	Errors      int       `db:"errors"`
	Result      []byte    `db:"result"`
}

func (r *runRow) toDomain() (*domain.RunResult, error) {
	var run domain.RunResult
	if err := json.Unmarshal(r.Result, &run); err != nil {
		return nil, fmt.Errorf("decoding stored run %s: %w", r.RunID, err)
	}
	return &run, nil
}

// Save inserts a run. Runs are immutable once completed; duplicates are a
// caller bug and surface as a constraint error.
func (r *RunRepository) Save(ctx context.Context, run *domain.RunResult) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	query := `
		INSERT INTO runs (
			run_id, plan_id, target_url, started_at, completed_at,
			total, passed, failed, skipped, errors, result
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.RunID,
		run.PlanID,
		run.TargetURL,
		run.StartedAt,
		run.CompletedAt,
		run.Totals.Total,
		run.Totals.Passed,
		run.Totals.Failed,
		run.Totals.Skipped,
		run.Totals.Errors,
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetByID retrieves one run.
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*domain.RunResult, error) {
	query := `SELECT run_id, plan_id, target_url, started_at, completed_at,
	                 total, passed, failed, skipped, errors, result
	          FROM runs WHERE run_id = $1`

	var row runRow
	if err := r.db.GetContext(ctx, &row, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// Recent returns up to limit runs for a target, newest first.
func (r *RunRepository) Recent(ctx context.Context, targetURL string, limit int) ([]*domain.RunResult, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT run_id, plan_id, target_url, started_at, completed_at,
	                 total, passed, failed, skipped, errors, result
	          FROM runs WHERE target_url = $1
	          ORDER BY created_at DESC LIMIT $2`

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, targetURL, limit); err != nil {
		return nil, err
	}

	runs := make([]*domain.RunResult, len(rows))
	for i := range rows {
		run, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		runs[i] = run
	}
	return runs, nil
}

// Previous returns the most recent run for a target before the given run,
// or ErrRunNotFound. The regression detector diffs against it.
func (r *RunRepository) Previous(ctx context.Context, targetURL, beforeRunID string) (*domain.RunResult, error) {
	query := `SELECT run_id, plan_id, target_url, started_at, completed_at,
	                 total, passed, failed, skipped, errors, result
	          FROM runs
	          WHERE target_url = $1 AND run_id <> $2
	          ORDER BY created_at DESC LIMIT 1`

	var row runRow
	if err := r.db.GetContext(ctx, &row, query, targetURL, beforeRunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return row.toDomain()
}
