// Package dedup filters already-seen articles out of a collection batch.
// Uniqueness is decided by content fingerprint and by the (competitor, URL)
// pair, and survives across runs because the store enforces both with
// unique constraints.
package dedup

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
)

// stripes bounds lock contention: articles hash to one of these mutexes
// so concurrent Add calls only serialize when they touch the same stripe.
const stripes = 64

// Deduplicator decides whether a collected article is new. The database
// unique constraints are the source of truth; the striped locks only keep
// identical in-flight articles within one process from racing each other.
type Deduplicator struct {
	articles repository.ArticleRepository
	locks    [stripes]sync.Mutex
}

func New(articles repository.ArticleRepository) *Deduplicator {
	return &Deduplicator{articles: articles}
}

// Result reports the outcome of deduplicating one batch.
type Result struct {
	New        []*entity.Article
	Duplicates int
}

// Add stores the article if it has not been seen before, in this run or
// any earlier one. It returns true when the article was new and stored.
// The fingerprint is computed here if the collector did not set it.
func (d *Deduplicator) Add(ctx context.Context, article *entity.Article) (bool, error) {
	if article.Fingerprint == "" {
		*article = article.WithFingerprint()
	}
	if article.CollectedAt.IsZero() {
		article.CollectedAt = time.Now()
	}

	lock := &d.locks[stripeFor(article.Fingerprint)]
	lock.Lock()
	defer lock.Unlock()

	inserted, err := d.articles.InsertIfNew(ctx, article)
	if err != nil {
		return false, fmt.Errorf("dedup add: %w", err)
	}
	return inserted, nil
}

// AddBatch deduplicates a whole collection batch, preserving input order
// among the articles that turn out to be new.
func (d *Deduplicator) AddBatch(ctx context.Context, articles []*entity.Article) (Result, error) {
	result := Result{New: make([]*entity.Article, 0, len(articles))}
	for _, article := range articles {
		isNew, err := d.Add(ctx, article)
		if err != nil {
			return result, err
		}
		if isNew {
			result.New = append(result.New, article)
		} else {
			result.Duplicates++
			slog.Debug("duplicate article skipped",
				slog.String("competitor", article.Competitor),
				slog.String("url", article.URL))
		}
	}
	return result, nil
}

// IsNew reports whether the article would be stored, without storing it.
// Useful for pre-filtering before an expensive fetch of the full content.
func (d *Deduplicator) IsNew(ctx context.Context, article *entity.Article) (bool, error) {
	fp := article.Fingerprint
	if fp == "" {
		fp = entity.Fingerprint(article.Title, article.Content)
	}
	seen, err := d.articles.ExistsByFingerprint(ctx, fp)
	if err != nil {
		return false, fmt.Errorf("dedup check fingerprint: %w", err)
	}
	if seen {
		return false, nil
	}
	seen, err = d.articles.ExistsByCompetitorURL(ctx, article.Competitor, article.URL)
	if err != nil {
		return false, fmt.Errorf("dedup check url: %w", err)
	}
	return !seen, nil
}

func stripeFor(fingerprint string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return int(h.Sum32() % stripes)
}
