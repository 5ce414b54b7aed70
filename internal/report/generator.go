// Package report renders ranked intelligence items into an HTML report
// artifact. The artifact is always written to disk before any delivery
// attempt so a failed send never loses a report.
package report

import (
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"compintel/internal/domain/entity"
	"compintel/internal/usecase/prioritize"
)

// Config controls report rendering.
type Config struct {
	// OutputDir is where artifacts are written.
	OutputDir string
	// ExecutiveItems is how many top stories the executive section
	// shows.
	ExecutiveItems int
}

// Generator renders reports with html/template.
type Generator struct {
	cfg  Config
	tmpl *template.Template
	now  func() time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "reports"
	}
	if cfg.ExecutiveItems <= 0 {
		cfg.ExecutiveItems = 5
	}
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Generator{cfg: cfg, tmpl: tmpl, now: time.Now}, nil
}

type reportData struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	GeneratedAt time.Time
	Total       int
	Fallbacks   int
	Executive   []prioritize.Item
	Competitors []competitorSection
}

type competitorSection struct {
	Name  string
	Items []prioritize.Item
}

// Generate writes the artifact and returns the pending report record.
// Items are expected ranked; the executive section takes the head and
// the per-competitor sections preserve rank order within each group.
func (g *Generator) Generate(runID string, window entity.Window, items []prioritize.Item) (*entity.Report, error) {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	data := g.buildData(window, items)
	name := fmt.Sprintf("report-%s-%s.html", window.To.Format("2006-01-02"), shortID(runID))
	path := filepath.Join(g.cfg.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := g.tmpl.Execute(f, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	slog.Info("report artifact written",
		slog.String("run_id", runID),
		slog.String("path", path),
		slog.Int("articles", len(items)))

	return &entity.Report{
		RunID:        runID,
		PeriodStart:  window.From,
		PeriodEnd:    window.To,
		ArticleCount: len(items),
		ArtifactPath: path,
		Status:       entity.ReportStatusPending,
		CreatedAt:    g.now(),
	}, nil
}

func (g *Generator) buildData(window entity.Window, items []prioritize.Item) reportData {
	executive := items
	if len(executive) > g.cfg.ExecutiveItems {
		executive = executive[:g.cfg.ExecutiveItems]
	}

	grouped := make(map[string][]prioritize.Item)
	fallbacks := 0
	for _, item := range items {
		grouped[item.Article.Competitor] = append(grouped[item.Article.Competitor], item)
		if item.Summary.Fallback {
			fallbacks++
		}
	}
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	sections := make([]competitorSection, 0, len(names))
	for _, name := range names {
		sections = append(sections, competitorSection{Name: name, Items: grouped[name]})
	}

	return reportData{
		PeriodStart: window.From,
		PeriodEnd:   window.To,
		GeneratedAt: g.now(),
		Total:       len(items),
		Fallbacks:   fallbacks,
		Executive:   executive,
		Competitors: sections,
	}
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Competitor Intelligence Report</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #444; padding-bottom: 0.3em; }
h2 { margin-top: 1.6em; color: #333; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.4em 0.8em; border-bottom: 1px solid #ddd; vertical-align: top; }
.score { font-weight: bold; white-space: nowrap; }
.category { color: #666; font-size: 0.85em; }
.fallback { color: #a60; font-size: 0.8em; }
.meta { color: #888; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Competitor Intelligence Report</h1>
<p class="meta">{{.PeriodStart.Format "Jan 2, 2006"}} to {{.PeriodEnd.Format "Jan 2, 2006"}} &middot;
{{.Total}} articles{{if .Fallbacks}} ({{.Fallbacks}} extractive fallback){{end}} &middot;
generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</p>

{{if .Executive}}
<h2>Top Stories</h2>
<table>
{{range .Executive}}
<tr>
<td class="score">{{printf "%.2f" .Summary.PriorityScore}}</td>
<td>
<a href="{{.Article.URL}}">{{.Article.Title}}</a>
<span class="category">[{{.Summary.Category}}] {{.Article.Competitor}}</span>
<br>{{.Summary.Text}}{{if .Summary.Fallback}} <span class="fallback">(extract)</span>{{end}}
</td>
</tr>
{{end}}
</table>
{{end}}

{{range .Competitors}}
<h2>{{.Name}}</h2>
<table>
{{range .Items}}
<tr>
<td class="score">{{printf "%.2f" .Summary.PriorityScore}}</td>
<td>
<a href="{{.Article.URL}}">{{.Article.Title}}</a>
<span class="category">[{{.Summary.Category}}] {{.Article.PublishedAt.Format "Jan 2"}} &middot; {{.Article.Source}}</span>
<br>{{.Summary.Text}}{{if .Summary.Fallback}} <span class="fallback">(extract)</span>{{end}}
</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>`
