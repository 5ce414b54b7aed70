package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"

	"github.com/lib/pq"
)

type ArticleRepo struct {
	db *sql.DB
}

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

// InsertIfNew inserts the article unless the fingerprint or the
// (competitor, url) pair already exists. ON CONFLICT DO NOTHING makes the
// check-and-insert a single atomic statement, so concurrent runs racing on
// the same article cannot both succeed.
func (repo *ArticleRepo) InsertIfNew(ctx context.Context, article *entity.Article) (bool, error) {
	const query = `
INSERT INTO articles (competitor, url, title, content, source, published_at, fingerprint, collected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		article.Competitor, article.URL, article.Title, article.Content,
		article.Source, article.PublishedAt, article.Fingerprint, article.CollectedAt,
	).Scan(&article.ID)
	if err == sql.ErrNoRows {
		// Conflict: an article with this fingerprint or (competitor, url)
		// already exists.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("InsertIfNew: %w", err)
	}
	return true, nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	const query = `
SELECT id, competitor, url, title, content, source, published_at, fingerprint, collected_at
FROM articles
WHERE id = $1`
	var article entity.Article
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID, &article.Competitor, &article.URL, &article.Title,
		&article.Content, &article.Source, &article.PublishedAt,
		&article.Fingerprint, &article.CollectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &article, nil
}

func (repo *ArticleRepo) List(ctx context.Context, filters repository.ArticleFilters) ([]*entity.Article, error) {
	query := `
SELECT id, competitor, url, title, content, source, published_at, fingerprint, collected_at
FROM articles
WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if filters.Competitor != nil {
		args = append(args, *filters.Competitor)
		query += fmt.Sprintf(" AND competitor = $%d", len(args))
	}
	if filters.Window != nil {
		args = append(args, filters.Window.From)
		query += fmt.Sprintf(" AND published_at >= $%d", len(args))
		args = append(args, filters.Window.To)
		query += fmt.Sprintf(" AND published_at < $%d", len(args))
	}
	query += " ORDER BY published_at DESC"

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 100)
	for rows.Next() {
		var article entity.Article
		if err := rows.Scan(&article.ID, &article.Competitor, &article.URL,
			&article.Title, &article.Content, &article.Source,
			&article.PublishedAt, &article.Fingerprint, &article.CollectedAt); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM articles WHERE fingerprint = $1)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, fingerprint).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByFingerprint: %w", err)
	}
	return exists, nil
}

func (repo *ArticleRepo) ExistsByCompetitorURL(ctx context.Context, competitor, url string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM articles WHERE competitor = $1 AND url = $2)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, competitor, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByCompetitorURL: %w", err)
	}
	return exists, nil
}

// ExistsByFingerprintBatch checks all fingerprints in one query to avoid
// an N+1 round trip per collected article.
func (repo *ArticleRepo) ExistsByFingerprintBatch(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	result := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return result, nil
	}
	for _, fp := range fingerprints {
		result[fp] = false
	}

	const query = `SELECT fingerprint FROM articles WHERE fingerprint = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(fingerprints))
	if err != nil {
		return nil, fmt.Errorf("ExistsByFingerprintBatch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("ExistsByFingerprintBatch: Scan: %w", err)
		}
		result[fp] = true
	}
	return result, rows.Err()
}

func (repo *ArticleRepo) Count(ctx context.Context, filters repository.ArticleFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM articles WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if filters.Competitor != nil {
		args = append(args, *filters.Competitor)
		query += fmt.Sprintf(" AND competitor = $%d", len(args))
	}
	if filters.Window != nil {
		args = append(args, filters.Window.From)
		query += fmt.Sprintf(" AND published_at >= $%d", len(args))
		args = append(args, filters.Window.To)
		query += fmt.Sprintf(" AND published_at < $%d", len(args))
	}
	var count int64
	if err := repo.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}
