package summarizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compintel/internal/domain/entity"
)

func batchArticles() []*entity.Article {
	pub := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	return []*entity.Article{
		{ID: 11, Competitor: "Acme", Title: "Acme launches widget", Content: "Widget body.", PublishedAt: pub},
		{ID: 22, Competitor: "Acme", Title: "Acme raises Series B", Content: "Funding body.", PublishedAt: pub},
		{ID: 33, Competitor: "Globex", Title: "Globex hires CTO", Content: "Hire body.", PublishedAt: pub},
	}
}

func TestBuildBatchPrompt(t *testing.T) {
	prompt := BuildBatchPrompt(batchArticles())

	assert.Contains(t, prompt, "[1] Acme launches widget (Acme, 2026-08-18)")
	assert.Contains(t, prompt, "[2] Acme raises Series B")
	assert.Contains(t, prompt, "[3] Globex hires CTO (Globex, 2026-08-18)")
	// Every valid category is offered to the model.
	for _, c := range entity.Categories() {
		assert.Contains(t, prompt, string(c))
	}
}

func TestBuildBatchPrompt_TruncatesLongBodies(t *testing.T) {
	long := make([]byte, maxArticleChars+500)
	for i := range long {
		long[i] = 'x'
	}
	articles := []*entity.Article{{ID: 1, Title: "t", Content: string(long)}}

	prompt := BuildBatchPrompt(articles)
	assert.Less(t, len(prompt), maxArticleChars+1000)
	assert.Contains(t, prompt, "...")
}

func TestParseBatchResponse_WellFormed(t *testing.T) {
	articles := batchArticles()
	response := `[1] Acme shipped its widget to general availability.
Category: Product Updates

[2] Acme closed a $50M Series B round.
Category: Funding

[3] Globex brought in a new CTO from a rival.
Category: Executive Moves`

	got := ParseBatchResponse(response, articles)
	require.Len(t, got, 3)
	assert.Equal(t, "Acme shipped its widget to general availability.", got[11].Text)
	assert.Equal(t, entity.CategoryProductUpdates, got[11].Category)
	assert.Equal(t, entity.CategoryFunding, got[22].Category)
	assert.Equal(t, entity.CategoryExecutiveMoves, got[33].Category)
}

func TestParseBatchResponse_MultilineSummary(t *testing.T) {
	articles := batchArticles()
	response := `[1] First sentence of the summary.
Second sentence continues the thought.
Category: Product Updates`

	got := ParseBatchResponse(response, articles)
	require.Contains(t, got, int64(11))
	assert.Equal(t, "First sentence of the summary. Second sentence continues the thought.", got[11].Text)
}

func TestParseBatchResponse_SkippedItemAbsent(t *testing.T) {
	articles := batchArticles()
	response := `[1] Only the first article got summarized.
Category: Product Updates

[3] And the third.
Category: Executive Moves`

	got := ParseBatchResponse(response, articles)
	require.Len(t, got, 2)
	assert.NotContains(t, got, int64(22))
}

func TestParseBatchResponse_GarbageAndPreamble(t *testing.T) {
	articles := batchArticles()
	response := `Here are your summaries:

[2] The funding round summary.
Category: funding

Hope that helps!`

	got := ParseBatchResponse(response, articles)
	require.Len(t, got, 1)
	// Lowercase category labels normalize onto the enum.
	assert.Equal(t, entity.CategoryFunding, got[22].Category)
	assert.Equal(t, "The funding round summary. Hope that helps!", got[22].Text)
}

func TestParseBatchResponse_OutOfRangeIndexIgnored(t *testing.T) {
	articles := batchArticles()
	response := `[7] A summary for an article that does not exist.
Category: Other`

	got := ParseBatchResponse(response, articles)
	assert.Empty(t, got)
}

func TestParseBatchResponse_UnknownCategoryMapsToOther(t *testing.T) {
	articles := batchArticles()
	response := `[1] Summary text.
Category: Breaking News`

	got := ParseBatchResponse(response, articles)
	require.Contains(t, got, int64(11))
	assert.Equal(t, entity.CategoryOther, got[11].Category)
}

func TestParseItemHeader(t *testing.T) {
	tests := []struct {
		line   string
		wantN  int
		wantOK bool
	}{
		{"[1] text", 1, true},
		{"[12] text", 12, true},
		{"[0] text", 0, false},
		{"[x] text", 0, false},
		{"no header", 0, false},
		{"[] empty", 0, false},
	}
	for _, tt := range tests {
		n, _, ok := parseItemHeader(tt.line)
		assert.Equal(t, tt.wantOK, ok, "line=%q", tt.line)
		if ok {
			assert.Equal(t, tt.wantN, n, "line=%q", tt.line)
		}
	}
}
