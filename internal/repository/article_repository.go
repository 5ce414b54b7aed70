package repository

import (
	"context"

	"compintel/internal/domain/entity"
)

// ArticleFilters contains optional filters for article listing.
type ArticleFilters struct {
	Competitor *string        // Optional: filter by competitor name
	Window     *entity.Window // Optional: filter by published_at window
}

type ArticleRepository interface {
	// InsertIfNew atomically inserts the article unless one with the same
	// fingerprint or the same (competitor, url) pair already exists.
	// Returns true when the article was inserted. The check and the insert
	// are a single statement so concurrent runs cannot both insert.
	InsertIfNew(ctx context.Context, article *entity.Article) (bool, error)
	Get(ctx context.Context, id int64) (*entity.Article, error)
	List(ctx context.Context, filters ArticleFilters) ([]*entity.Article, error)
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	ExistsByCompetitorURL(ctx context.Context, competitor, url string) (bool, error)
	// ExistsByFingerprintBatch checks fingerprints in one round trip to
	// avoid an N+1 query per collected article.
	ExistsByFingerprintBatch(ctx context.Context, fingerprints []string) (map[string]bool, error)
	Count(ctx context.Context, filters ArticleFilters) (int64, error)
}
