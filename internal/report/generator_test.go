package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compintel/internal/domain/entity"
	"compintel/internal/usecase/prioritize"
)

func testItems() []prioritize.Item {
	published := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	return []prioritize.Item{
		{
			Article: &entity.Article{
				Competitor:  "Acme",
				URL:         "https://acme.example/funding",
				Title:       "Acme raises Series C",
				Source:      "newsapi",
				PublishedAt: published,
			},
			Summary: &entity.Summary{
				Text:          "Acme closed a $120M round.",
				Category:      entity.CategoryFunding,
				PriorityScore: 9.1,
			},
		},
		{
			Article: &entity.Article{
				Competitor:  "Borealis",
				URL:         "https://borealis.example/launch",
				Title:       "Borealis launches v2",
				Source:      "rss",
				PublishedAt: published.Add(-24 * time.Hour),
			},
			Summary: &entity.Summary{
				Text:          "Borealis shipped a new major version.",
				Category:      entity.CategoryProductUpdates,
				PriorityScore: 7.4,
				Fallback:      true,
			},
		},
	}
}

func TestGeneratorGenerate(t *testing.T) {
	dir := t.TempDir()
	gen, err := NewGenerator(Config{OutputDir: dir, ExecutiveItems: 1})
	require.NoError(t, err)
	gen.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }

	window := entity.Window{
		From: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	runID := "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"

	rep, err := gen.Generate(runID, window, testItems())
	require.NoError(t, err)

	assert.Equal(t, runID, rep.RunID)
	assert.Equal(t, window.From, rep.PeriodStart)
	assert.Equal(t, window.To, rep.PeriodEnd)
	assert.Equal(t, 2, rep.ArticleCount)
	assert.Equal(t, entity.ReportStatusPending, rep.Status)
	assert.Equal(t, "report-2026-03-10-0f1e2d3c.html", filepath.Base(rep.ArtifactPath))

	raw, err := os.ReadFile(rep.ArtifactPath)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "Acme raises Series C")
	assert.Contains(t, html, "Borealis launches v2")
	assert.Contains(t, html, "https://acme.example/funding")
	assert.Contains(t, html, "(1 extractive fallback)")
	// Executive section is capped at one item, so the Borealis story
	// appears only in its competitor section.
	assert.Equal(t, 1, strings.Count(html, "Borealis launches v2"))
	// Competitor sections are alphabetical.
	assert.Less(t, strings.Index(html, "<h2>Acme</h2>"), strings.Index(html, "<h2>Borealis</h2>"))
}

func TestGeneratorGenerateEmpty(t *testing.T) {
	dir := t.TempDir()
	gen, err := NewGenerator(Config{OutputDir: dir})
	require.NoError(t, err)

	window := entity.Window{
		From: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	rep, err := gen.Generate("run-1", window, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.ArticleCount)

	raw, err := os.ReadFile(rep.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "0 articles")
}

func TestGeneratorEscapesMarkup(t *testing.T) {
	gen, err := NewGenerator(Config{OutputDir: t.TempDir()})
	require.NoError(t, err)

	items := testItems()
	items[0].Article.Title = `<script>alert("x")</script>`

	window := entity.Window{From: time.Now().Add(-time.Hour), To: time.Now()}
	rep, err := gen.Generate("run-2", window, items)
	require.NoError(t, err)

	raw, err := os.ReadFile(rep.ArtifactPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "<script>")
}
