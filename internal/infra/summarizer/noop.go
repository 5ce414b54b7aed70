package summarizer

import (
	"context"

	"compintel/internal/domain/entity"
	"compintel/internal/usecase/process"
)

// NoOp echoes each article's leading text back as its summary. Useful
// for development runs without API credentials.
type NoOp struct{}

func NewNoOp() *NoOp { return &NoOp{} }

func (NoOp) Service() string { return "noop" }

func (NoOp) SummarizeBatch(_ context.Context, articles []*entity.Article) (map[int64]process.ItemSummary, error) {
	const maxLength = 500
	results := make(map[int64]process.ItemSummary, len(articles))
	for _, a := range articles {
		text := a.Content
		if text == "" {
			text = a.Title
		}
		if len(text) > maxLength {
			text = text[:maxLength] + "..."
		}
		results[a.ID] = process.ItemSummary{Text: text, Category: entity.CategoryOther}
	}
	return results, nil
}
