package repository

import (
	"context"

	"compintel/internal/domain/entity"
)

// SummaryWithArticle pairs a summary with the article it describes,
// as report generation needs both.
type SummaryWithArticle struct {
	Summary *entity.Summary
	Article *entity.Article
}

type SummaryRepository interface {
	Create(ctx context.Context, summary *entity.Summary) error
	// CreateBatch inserts summaries in a single transaction. A batch is
	// persisted all-or-nothing so a crash never leaves half a batch.
	CreateBatch(ctx context.Context, summaries []*entity.Summary) error
	Get(ctx context.Context, id int64) (*entity.Summary, error)
	GetByArticle(ctx context.Context, articleID int64) (*entity.Summary, error)
	// ListRanked retrieves summaries with their articles for the window,
	// ordered by priority score descending.
	ListRanked(ctx context.Context, window entity.Window) ([]SummaryWithArticle, error)
	UpdatePriority(ctx context.Context, id int64, score float64) error
}
