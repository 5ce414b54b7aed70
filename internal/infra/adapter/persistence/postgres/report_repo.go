package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
)

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) repository.ReportRepository {
	return &ReportRepo{db: db}
}

func (repo *ReportRepo) Create(ctx context.Context, report *entity.Report) error {
	const query = `
INSERT INTO reports (run_id, period_start, period_end, article_count, artifact_path, status, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		report.RunID, report.PeriodStart, report.PeriodEnd, report.ArticleCount,
		report.ArtifactPath, report.Status, report.ErrorMessage, report.CreatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ReportRepo) UpdateStatus(ctx context.Context, id int64, status entity.ReportStatus) error {
	var sentAt interface{}
	if status == entity.ReportStatusSent {
		sentAt = time.Now()
	}
	const query = `UPDATE reports SET status = $1, sent_at = $2 WHERE id = $3`
	if _, err := repo.db.ExecContext(ctx, query, status, sentAt, id); err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

func (repo *ReportRepo) Get(ctx context.Context, id int64) (*entity.Report, error) {
	const query = `
SELECT id, run_id, period_start, period_end, article_count, artifact_path, status, error_message, created_at, sent_at
FROM reports
WHERE id = $1`
	report, err := scanReport(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return report, nil
}

// ListUndelivered returns reports still waiting on delivery, oldest first,
// so a subsequent run can retry them.
func (repo *ReportRepo) ListUndelivered(ctx context.Context) ([]*entity.Report, error) {
	const query = `
SELECT id, run_id, period_start, period_end, article_count, artifact_path, status, error_message, created_at, sent_at
FROM reports
WHERE status <> 'sent'
ORDER BY created_at ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListUndelivered: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reports := make([]*entity.Report, 0, 10)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUndelivered: Scan: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*entity.Report, error) {
	var r entity.Report
	var errMsg sql.NullString
	var sentAt sql.NullTime
	if err := row.Scan(&r.ID, &r.RunID, &r.PeriodStart, &r.PeriodEnd,
		&r.ArticleCount, &r.ArtifactPath, &r.Status, &errMsg, &r.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	r.ErrorMessage = errMsg.String
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return &r, nil
}
