package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) repository.RunRepository {
	return &RunRepo{db: db}
}

func (repo *RunRepo) Create(ctx context.Context, run *entity.RunRecord) error {
	const query = `
INSERT INTO runs (id, started_at, status, errors)
VALUES ($1, $2, $3, '[]')`
	if _, err := repo.db.ExecContext(ctx, query, run.ID, run.StartedAt, run.Status); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Finish writes the final status, counters and accumulated stage errors.
func (repo *RunRepo) Finish(ctx context.Context, run *entity.RunRecord) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("Finish: marshal errors: %w", err)
	}
	const query = `
UPDATE runs
SET finished_at = $1, status = $2,
    collected = $3, new_articles = $4, duplicates = $5,
    summarized = $6, fallback_used = $7, delivered = $8,
    errors = $9
WHERE id = $10`
	if _, err := repo.db.ExecContext(ctx, query,
		run.FinishedAt, run.Status,
		run.Counts.Collected, run.Counts.New, run.Counts.Duplicates,
		run.Counts.Summarized, run.Counts.FallbackUsed, run.Counts.Delivered,
		errsJSON, run.ID); err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	return nil
}

func (repo *RunRepo) Get(ctx context.Context, id string) (*entity.RunRecord, error) {
	const query = `
SELECT id, started_at, finished_at, status,
       collected, new_articles, duplicates, summarized, fallback_used, delivered, errors
FROM runs
WHERE id = $1`
	run, err := scanRun(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return run, nil
}

func (repo *RunRepo) ListRecent(ctx context.Context, limit int) ([]*entity.RunRecord, error) {
	const query = `
SELECT id, started_at, finished_at, status,
       collected, new_articles, duplicates, summarized, fallback_used, delivered, errors
FROM runs
ORDER BY started_at DESC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*entity.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecent: Scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*entity.RunRecord, error) {
	var run entity.RunRecord
	var finishedAt sql.NullTime
	var errsJSON []byte
	if err := row.Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Status,
		&run.Counts.Collected, &run.Counts.New, &run.Counts.Duplicates,
		&run.Counts.Summarized, &run.Counts.FallbackUsed, &run.Counts.Delivered,
		&errsJSON); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &run.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	return &run, nil
}
