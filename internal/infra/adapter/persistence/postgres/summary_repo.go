package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
)

type SummaryRepo struct {
	db *sql.DB
}

func NewSummaryRepo(db *sql.DB) repository.SummaryRepository {
	return &SummaryRepo{db: db}
}

func (repo *SummaryRepo) Create(ctx context.Context, summary *entity.Summary) error {
	const query = `
INSERT INTO summaries (article_id, text, category, priority_score, fallback, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		summary.ArticleID, summary.Text, summary.Category,
		summary.PriorityScore, summary.Fallback, summary.CreatedAt,
	).Scan(&summary.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CreateBatch inserts all summaries inside one transaction so a failure
// never stores half of a processing batch.
func (repo *SummaryRepo) CreateBatch(ctx context.Context, summaries []*entity.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateBatch: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
INSERT INTO summaries (article_id, text, category, priority_score, fallback, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	for _, s := range summaries {
		if err := tx.QueryRowContext(ctx, query,
			s.ArticleID, s.Text, s.Category, s.PriorityScore, s.Fallback, s.CreatedAt,
		).Scan(&s.ID); err != nil {
			return fmt.Errorf("CreateBatch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CreateBatch: commit: %w", err)
	}
	return nil
}

func (repo *SummaryRepo) Get(ctx context.Context, id int64) (*entity.Summary, error) {
	const query = `
SELECT id, article_id, text, category, priority_score, fallback, created_at
FROM summaries
WHERE id = $1`
	return repo.scanOne(repo.db.QueryRowContext(ctx, query, id), "Get")
}

func (repo *SummaryRepo) GetByArticle(ctx context.Context, articleID int64) (*entity.Summary, error) {
	const query = `
SELECT id, article_id, text, category, priority_score, fallback, created_at
FROM summaries
WHERE article_id = $1`
	return repo.scanOne(repo.db.QueryRowContext(ctx, query, articleID), "GetByArticle")
}

func (repo *SummaryRepo) scanOne(row *sql.Row, op string) (*entity.Summary, error) {
	var s entity.Summary
	err := row.Scan(&s.ID, &s.ArticleID, &s.Text, &s.Category,
		&s.PriorityScore, &s.Fallback, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

// ListRanked retrieves summaries joined with their articles for the
// window, highest priority first. Ties break toward the newer article.
func (repo *SummaryRepo) ListRanked(ctx context.Context, window entity.Window) ([]repository.SummaryWithArticle, error) {
	const query = `
SELECT s.id, s.article_id, s.text, s.category, s.priority_score, s.fallback, s.created_at,
       a.id, a.competitor, a.url, a.title, a.content, a.source, a.published_at, a.fingerprint, a.collected_at
FROM summaries s
INNER JOIN articles a ON s.article_id = a.id
WHERE a.published_at >= $1 AND a.published_at < $2
ORDER BY s.priority_score DESC, a.published_at DESC`
	rows, err := repo.db.QueryContext(ctx, query, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("ListRanked: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]repository.SummaryWithArticle, 0, 100)
	for rows.Next() {
		var s entity.Summary
		var a entity.Article
		if err := rows.Scan(
			&s.ID, &s.ArticleID, &s.Text, &s.Category, &s.PriorityScore, &s.Fallback, &s.CreatedAt,
			&a.ID, &a.Competitor, &a.URL, &a.Title, &a.Content, &a.Source,
			&a.PublishedAt, &a.Fingerprint, &a.CollectedAt); err != nil {
			return nil, fmt.Errorf("ListRanked: Scan: %w", err)
		}
		result = append(result, repository.SummaryWithArticle{Summary: &s, Article: &a})
	}
	return result, rows.Err()
}

func (repo *SummaryRepo) UpdatePriority(ctx context.Context, id int64, score float64) error {
	const query = `UPDATE summaries SET priority_score = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, score, id); err != nil {
		return fmt.Errorf("UpdatePriority: %w", err)
	}
	return nil
}
