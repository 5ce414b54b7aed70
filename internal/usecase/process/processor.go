// Package process turns deduplicated articles into summaries. Articles
// are summarized in batches through an AI provider; when the provider is
// degraded the processor falls back to extractive summaries so a run
// always produces output for every article.
package process

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/ratelimit"
	"compintel/internal/resilience/retry"
)

// ItemSummary is one article's summary as returned by the AI provider.
type ItemSummary struct {
	Text     string
	Category entity.Category
}

// Summarizer produces summaries for a batch of articles in one call.
// The result maps article ID to its summary; an article missing from the
// map means the provider response could not be parsed for that item.
type Summarizer interface {
	SummarizeBatch(ctx context.Context, articles []*entity.Article) (map[int64]ItemSummary, error)
	Service() string
}

// Config controls batching and concurrency.
type Config struct {
	BatchSize   int
	Concurrency int
	Retry       retry.Config
}

// DefaultConfig batches 5 articles per call with 2 batches in flight.
func DefaultConfig() Config {
	return Config{
		BatchSize:   5,
		Concurrency: 2,
		Retry:       retry.DefaultConfig(),
	}
}

// BatchProcessor summarizes articles through a Summarizer guarded by a
// rate limiter and a circuit breaker.
type BatchProcessor struct {
	summarizer Summarizer
	limiter    *ratelimit.Bucket
	breaker    *circuitbreaker.CircuitBreaker
	cfg        Config
	now        func() time.Time
}

func NewBatchProcessor(summarizer Summarizer, limiter *ratelimit.Bucket, breaker *circuitbreaker.CircuitBreaker, cfg Config) *BatchProcessor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &BatchProcessor{
		summarizer: summarizer,
		limiter:    limiter,
		breaker:    breaker,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Stats counts how the batch run went.
type Stats struct {
	Summarized   int
	FallbackUsed int
}

// Process summarizes every article. The returned slice is parallel to the
// input: position i holds article i's summary, AI-generated when possible
// and extractive fallback otherwise. Provider failures degrade to fallback
// instead of erroring; context expiry returns the completed slice together
// with the context error.
func (p *BatchProcessor) Process(ctx context.Context, articles []*entity.Article) ([]*entity.Summary, Stats, error) {
	if len(articles) == 0 {
		return nil, Stats{}, nil
	}

	summaries := make([]*entity.Summary, len(articles))
	var mu sync.Mutex
	var stats Stats

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for start := 0; start < len(articles); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(articles) {
			end = len(articles)
		}
		start, end := start, end

		g.Go(func() error {
			batch := articles[start:end]
			results := p.processBatch(gctx, batch)

			mu.Lock()
			defer mu.Unlock()
			for i, s := range results {
				summaries[start+i] = s
				if s.Fallback {
					stats.FallbackUsed++
				} else {
					stats.Summarized++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		// Deadline expired mid-run. Batches that were in flight already
		// degraded to fallback, so the parallel slice is complete; hand
		// it back with the error so the caller can record the cutoff.
		return summaries, stats, err
	}
	return summaries, stats, nil
}

// processBatch summarizes one batch. It never returns an error: any
// failure mode ends in fallback summaries so the pipeline keeps moving.
func (p *BatchProcessor) processBatch(ctx context.Context, batch []*entity.Article) []*entity.Summary {
	results, err := p.summarizeWithGuards(ctx, batch)
	if err != nil {
		slog.Warn("batch summarization failed, using extractive fallback",
			slog.String("service", p.summarizer.Service()),
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
		return p.fallbackAll(batch)
	}

	summaries := make([]*entity.Summary, len(batch))
	fallbacks := 0
	for i, article := range batch {
		item, ok := results[article.ID]
		if !ok || item.Text == "" {
			// The provider answered but this item was missing or
			// unparsable; degrade just this one.
			summaries[i] = p.newFallback(article)
			fallbacks++
			continue
		}
		category := item.Category
		if !category.Valid() {
			category = CategorizeByKeyword(article)
		}
		summaries[i] = &entity.Summary{
			ArticleID: article.ID,
			Text:      item.Text,
			Category:  category,
			CreatedAt: p.now(),
		}
	}
	if fallbacks > 0 {
		slog.Warn("partial batch response",
			slog.Int("batch_size", len(batch)),
			slog.Int("fallback_items", fallbacks))
	}
	return summaries
}

func (p *BatchProcessor) summarizeWithGuards(ctx context.Context, batch []*entity.Article) (map[int64]ItemSummary, error) {
	// An already-open breaker means the provider is known bad: skip the
	// rate limiter and the retry loop entirely.
	if p.breaker != nil && p.breaker.IsOpen() {
		return nil, circuitbreaker.ErrOpen
	}

	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	var results map[int64]ItemSummary
	err := retry.Do(ctx, p.cfg.Retry, p.breaker, func(ctx context.Context) error {
		var callErr error
		results, callErr = p.summarizer.SummarizeBatch(ctx, batch)
		return callErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			slog.Warn("summarizer circuit open", slog.String("service", p.summarizer.Service()))
		}
		return nil, err
	}
	return results, nil
}

func (p *BatchProcessor) fallbackAll(batch []*entity.Article) []*entity.Summary {
	summaries := make([]*entity.Summary, len(batch))
	for i, article := range batch {
		summaries[i] = p.newFallback(article)
	}
	return summaries
}

func (p *BatchProcessor) newFallback(article *entity.Article) *entity.Summary {
	s := FallbackSummary(article)
	s.CreatedAt = p.now()
	return s
}
