package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/faults"
	"compintel/internal/resilience/retry"
	"compintel/internal/usecase/dedup"
	"compintel/internal/usecase/prioritize"
	"compintel/internal/usecase/process"
)

/* fakes */

type memArticleRepo struct {
	mu        sync.Mutex
	byFP      map[string]bool
	byCompURL map[string]bool
	nextID    int64
}

func newMemArticleRepo() *memArticleRepo {
	return &memArticleRepo{byFP: make(map[string]bool), byCompURL: make(map[string]bool)}
}

func (m *memArticleRepo) InsertIfNew(_ context.Context, a *entity.Article) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.Competitor + "\x00" + a.URL
	if m.byFP[a.Fingerprint] || m.byCompURL[key] {
		return false, nil
	}
	m.nextID++
	a.ID = m.nextID
	m.byFP[a.Fingerprint] = true
	m.byCompURL[key] = true
	return true, nil
}

func (m *memArticleRepo) Get(context.Context, int64) (*entity.Article, error) { return nil, nil }
func (m *memArticleRepo) List(context.Context, repository.ArticleFilters) ([]*entity.Article, error) {
	return nil, nil
}
func (m *memArticleRepo) ExistsByFingerprint(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byFP[fp], nil
}
func (m *memArticleRepo) ExistsByCompetitorURL(_ context.Context, c, u string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCompURL[c+"\x00"+u], nil
}
func (m *memArticleRepo) ExistsByFingerprintBatch(_ context.Context, fps []string) (map[string]bool, error) {
	out := make(map[string]bool, len(fps))
	for _, fp := range fps {
		out[fp] = m.byFP[fp]
	}
	return out, nil
}
func (m *memArticleRepo) Count(context.Context, repository.ArticleFilters) (int64, error) {
	return int64(len(m.byFP)), nil
}

type memSummaryRepo struct {
	mu      sync.Mutex
	created []*entity.Summary
}

func (m *memSummaryRepo) Create(_ context.Context, s *entity.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, s)
	return nil
}
func (m *memSummaryRepo) CreateBatch(ctx context.Context, ss []*entity.Summary) error {
	for _, s := range ss {
		if err := m.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
func (m *memSummaryRepo) Get(context.Context, int64) (*entity.Summary, error) { return nil, nil }
func (m *memSummaryRepo) GetByArticle(context.Context, int64) (*entity.Summary, error) {
	return nil, nil
}
func (m *memSummaryRepo) ListRanked(context.Context, entity.Window) ([]repository.SummaryWithArticle, error) {
	return nil, nil
}
func (m *memSummaryRepo) UpdatePriority(context.Context, int64, float64) error { return nil }

type memRunRepo struct {
	mu       sync.Mutex
	created  []*entity.RunRecord
	finished []*entity.RunRecord
}

func (m *memRunRepo) Create(_ context.Context, r *entity.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, r)
	return nil
}
func (m *memRunRepo) Finish(_ context.Context, r *entity.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, r)
	return nil
}
func (m *memRunRepo) Get(context.Context, string) (*entity.RunRecord, error) { return nil, nil }
func (m *memRunRepo) ListRecent(context.Context, int) ([]*entity.RunRecord, error) {
	return nil, nil
}

type memReportRepo struct {
	mu       sync.Mutex
	created  []*entity.Report
	statuses []entity.ReportStatus
}

func (m *memReportRepo) Create(_ context.Context, r *entity.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.created) + 1)
	m.created = append(m.created, r)
	return nil
}
func (m *memReportRepo) UpdateStatus(_ context.Context, _ int64, status entity.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}
func (m *memReportRepo) Get(context.Context, int64) (*entity.Report, error) { return nil, nil }
func (m *memReportRepo) ListUndelivered(context.Context) ([]*entity.Report, error) {
	return nil, nil
}

type stubCollector struct {
	source   string
	articles []*entity.Article
	err      error
}

func (c *stubCollector) Fetch(context.Context, entity.Competitor, entity.Window) ([]*entity.Article, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.articles, nil
}
func (c *stubCollector) Source() string { return c.source }

type stubGenerator struct{ err error }

func (g *stubGenerator) Generate(runID string, window entity.Window, items []prioritize.Item) (*entity.Report, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &entity.Report{
		RunID:        runID,
		PeriodStart:  window.From,
		PeriodEnd:    window.To,
		ArticleCount: len(items),
		ArtifactPath: "/tmp/report.html",
		Status:       entity.ReportStatusPending,
		CreatedAt:    time.Now(),
	}, nil
}

type stubDeliverer struct {
	channel string
	err     error
	sent    int
}

func (d *stubDeliverer) Deliver(context.Context, *entity.Report, []prioritize.Item) error {
	if d.err != nil {
		return d.err
	}
	d.sent++
	return nil
}
func (d *stubDeliverer) Channel() string { return d.channel }

type okSummarizer struct{}

func (okSummarizer) SummarizeBatch(_ context.Context, articles []*entity.Article) (map[int64]process.ItemSummary, error) {
	out := make(map[int64]process.ItemSummary, len(articles))
	for _, a := range articles {
		out[a.ID] = process.ItemSummary{Text: "summary of " + a.Title, Category: entity.CategoryProductUpdates}
	}
	return out, nil
}
func (okSummarizer) Service() string { return "ai" }

/* helpers */

func makeArticles(source string, n, offset int, now time.Time) []*entity.Article {
	articles := make([]*entity.Article, n)
	for i := range articles {
		articles[i] = &entity.Article{
			Competitor:  "Acme",
			URL:         fmt.Sprintf("https://%s.example/%d", source, offset+i),
			Title:       fmt.Sprintf("Acme story %d", offset+i),
			Content:     fmt.Sprintf("Body of story %d. More detail. Even more.", offset+i),
			Source:      source,
			PublishedAt: now.Add(-time.Duration(i+1) * time.Hour),
		}
	}
	return articles
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
}

type fixture struct {
	orch      *Orchestrator
	runs      *memRunRepo
	reports   *memReportRepo
	summaries *memSummaryRepo
	deliverer *stubDeliverer
}

func newFixture(t *testing.T, collectors []Collector, summarizer process.Summarizer, aiBreaker *circuitbreaker.CircuitBreaker, deliverer *stubDeliverer) *fixture {
	t.Helper()

	processor := process.NewBatchProcessor(summarizer, nil, aiBreaker, process.Config{
		BatchSize:   5,
		Concurrency: 2,
		Retry:       fastRetry(),
	})
	prioritizer, err := prioritize.New(prioritize.Config{
		Weights:         prioritize.DefaultWeights(),
		CompetitorTiers: map[string]entity.PriorityTier{"Acme": entity.TierHigh},
		Lookback:        7 * 24 * time.Hour,
	}, nil)
	require.NoError(t, err)

	runs := &memRunRepo{}
	reports := &memReportRepo{}
	summaries := &memSummaryRepo{}

	cfg := DefaultConfig()
	cfg.Competitors = []entity.Competitor{{Name: "Acme", Tier: entity.TierHigh}}
	cfg.Retry = fastRetry()
	cfg.RunTimeout = 10 * time.Second

	orch := New(cfg, collectors, dedup.New(newMemArticleRepo()), processor, prioritizer,
		&stubGenerator{}, []Deliverer{deliverer}, summaries, runs, reports, nil, nil)
	return &fixture{orch: orch, runs: runs, reports: reports, summaries: summaries, deliverer: deliverer}
}

// newCustomFixture is for tests that need their own Config, deliverers
// or breaker registry.
func newCustomFixture(t *testing.T, cfg Config, collectors []Collector, deliverers []Deliverer, breakers *circuitbreaker.Registry) *fixture {
	t.Helper()

	processor := process.NewBatchProcessor(okSummarizer{}, nil, nil, process.Config{
		BatchSize:   5,
		Concurrency: 2,
		Retry:       fastRetry(),
	})
	prioritizer, err := prioritize.New(prioritize.Config{
		Weights:         prioritize.DefaultWeights(),
		CompetitorTiers: map[string]entity.PriorityTier{"Acme": entity.TierHigh},
		Lookback:        7 * 24 * time.Hour,
	}, nil)
	require.NoError(t, err)

	runs := &memRunRepo{}
	reports := &memReportRepo{}
	summaries := &memSummaryRepo{}

	orch := New(cfg, collectors, dedup.New(newMemArticleRepo()), processor, prioritizer,
		&stubGenerator{}, deliverers, summaries, runs, reports, nil, breakers)
	return &fixture{orch: orch, runs: runs, reports: reports, summaries: summaries}
}

/* tests */

func TestRun_AllStagesSucceed(t *testing.T) {
	now := time.Now()
	collectors := []Collector{
		&stubCollector{source: "newsapi", articles: makeArticles("newsapi", 3, 0, now)},
	}
	f := newFixture(t, collectors, okSummarizer{}, nil, &stubDeliverer{channel: "email"})

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSuccess, run.Status)
	assert.Equal(t, 3, run.Counts.Collected)
	assert.Equal(t, 3, run.Counts.New)
	assert.Equal(t, 3, run.Counts.Summarized)
	assert.Equal(t, 3, run.Counts.Delivered)
	assert.Empty(t, run.Errors)
	assert.Len(t, f.summaries.created, 3)
	require.Len(t, f.reports.created, 1)
	assert.Equal(t, 1, f.deliverer.sent)
	require.Len(t, f.runs.finished, 1)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRun_DegradedSourcesAndOpenSummarizerCircuit(t *testing.T) {
	now := time.Now()

	// Source 1 yields 10 articles, source 2 fails permanently, source 3
	// yields 5 of which 2 duplicate source 1 stories.
	src1 := makeArticles("newsapi", 10, 0, now)
	src3 := makeArticles("rss", 3, 100, now)
	dupA := *src1[0]
	dupB := *src1[1]
	dupA.Source, dupB.Source = "rss", "rss"
	src3 = append(src3, &dupA, &dupB)

	collectors := []Collector{
		&stubCollector{source: "newsapi", articles: src1},
		&stubCollector{source: "scraper", err: faults.Permanent("scraper", errors.New("404 page gone"))},
		&stubCollector{source: "rss", articles: src3},
	}

	// Summarizer circuit already open: every summary degrades to the
	// extractive fallback without touching the provider.
	aiBreaker := circuitbreaker.New(circuitbreaker.Config{Name: "ai", FailureThreshold: 1, Cooldown: time.Minute})
	_, _ = aiBreaker.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	require.True(t, aiBreaker.IsOpen())

	f := newFixture(t, collectors, okSummarizer{}, aiBreaker, &stubDeliverer{channel: "email"})

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusPartialSuccess, run.Status)
	assert.Equal(t, 15, run.Counts.Collected)
	assert.Equal(t, 13, run.Counts.New)
	assert.Equal(t, 2, run.Counts.Duplicates)
	assert.Equal(t, 0, run.Counts.Summarized)
	assert.Equal(t, 13, run.Counts.FallbackUsed)
	assert.Equal(t, 13, run.Counts.Delivered)

	stagesSeen := map[entity.Stage]bool{}
	for _, e := range run.Errors {
		stagesSeen[e.Stage] = true
	}
	assert.True(t, stagesSeen[entity.StageCollecting], "scraper failure must be recorded")
	assert.True(t, stagesSeen[entity.StageSummarizing], "fallback use must be recorded")

	// Every stored summary is a fallback one.
	require.Len(t, f.summaries.created, 13)
	for _, s := range f.summaries.created {
		assert.True(t, s.Fallback)
	}
}

func TestRun_CriticalCollectorFaultAbortsRun(t *testing.T) {
	now := time.Now()
	collectors := []Collector{
		&stubCollector{source: "newsapi", err: faults.Critical("newsapi", errors.New("api key not configured"))},
		&stubCollector{source: "rss", articles: makeArticles("rss", 2, 0, now)},
	}
	f := newFixture(t, collectors, okSummarizer{}, nil, &stubDeliverer{channel: "email"})

	run, err := f.orch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.Equal(t, 0, f.deliverer.sent)
	// The record is persisted even for an aborted run.
	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, entity.RunStatusFailed, f.runs.finished[0].Status)
}

func TestRun_DeliveryFailureKeepsArtifact(t *testing.T) {
	now := time.Now()
	collectors := []Collector{
		&stubCollector{source: "newsapi", articles: makeArticles("newsapi", 2, 0, now)},
	}
	f := newFixture(t, collectors, okSummarizer{}, nil,
		&stubDeliverer{channel: "email", err: errors.New("smtp connect timeout")})

	run, err := f.orch.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, entity.RunStatusPartialSuccess, run.Status)

	// Report row exists and was marked failed; summaries survived.
	require.Len(t, f.reports.created, 1)
	require.NotEmpty(t, f.reports.statuses)
	assert.Equal(t, entity.ReportStatusFailed, f.reports.statuses[len(f.reports.statuses)-1])
	assert.Len(t, f.summaries.created, 2)
}

func TestRun_NoNewArticlesSkipsDownstream(t *testing.T) {
	now := time.Now()
	shared := makeArticles("newsapi", 2, 0, now)

	collectors := []Collector{&stubCollector{source: "newsapi", articles: shared}}
	f := newFixture(t, collectors, okSummarizer{}, nil, &stubDeliverer{channel: "email"})

	// First run stores both articles, second run sees only duplicates.
	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Counts.Duplicates)
	assert.Equal(t, 0, run.Counts.New)
	// Only the first run produced a report.
	assert.Len(t, f.reports.created, 1)
}

func TestRun_TransientSourceRetriedThenContained(t *testing.T) {
	now := time.Now()
	flaky := &flakyCollector{source: "newsapi", failures: 1, articles: makeArticles("newsapi", 2, 0, now)}
	f := newFixture(t, []Collector{flaky}, okSummarizer{}, nil, &stubDeliverer{channel: "email"})

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Counts.Collected)
	assert.Equal(t, 2, flaky.calls, "one failure plus one successful retry")
}

func TestRun_OpenSourceCircuitIsContained(t *testing.T) {
	now := time.Now()

	// A source that is fully down trips its breaker after two failures;
	// from then on calls for the remaining competitors short-circuit.
	down := &downCollector{source: "newsapi"}
	healthy := &collectorFunc{source: "rss", fn: func(comp entity.Competitor) []*entity.Article {
		return []*entity.Article{{
			Competitor:  comp.Name,
			URL:         "https://rss.example/" + comp.Name,
			Title:       comp.Name + " ships a release",
			Content:     "Release details. More detail. Even more.",
			Source:      "rss",
			PublishedAt: now.Add(-time.Hour),
		}}
	}}

	breakers := circuitbreaker.NewRegistry(map[string]circuitbreaker.Config{
		"newsapi": {FailureThreshold: 2, Cooldown: time.Minute},
	})

	cfg := DefaultConfig()
	cfg.Competitors = []entity.Competitor{
		{Name: "Acme", Tier: entity.TierHigh},
		{Name: "Globex", Tier: entity.TierMedium},
	}
	cfg.Retry = fastRetry()
	cfg.RunTimeout = 10 * time.Second
	f := newCustomFixture(t, cfg, []Collector{down, healthy},
		[]Deliverer{&stubDeliverer{channel: "email"}}, breakers)

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err, "an open source circuit must degrade the run, not abort it")
	require.True(t, breakers.Breaker("newsapi").IsOpen())

	assert.Equal(t, entity.RunStatusPartialSuccess, run.Status)
	assert.Equal(t, 2, run.Counts.Collected, "the healthy source's articles survive")
	assert.Equal(t, 2, run.Counts.New)
	assert.Equal(t, 2, run.Counts.Delivered)
	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, entity.RunStatusPartialSuccess, f.runs.finished[0].Status)
}

func TestRun_DeadlineDuringCollectionKeepsPartialResults(t *testing.T) {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The source delivers its articles and then the run deadline fires
	// before the next stage begins.
	c := &collectorFunc{source: "newsapi", fn: func(entity.Competitor) []*entity.Article {
		cancel()
		return makeArticles("newsapi", 2, 0, now)
	}}
	f := newFixture(t, []Collector{c}, okSummarizer{}, nil, &stubDeliverer{channel: "email"})

	run, err := f.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusPartialSuccess, run.Status)
	assert.Equal(t, 2, run.Counts.Collected)
	assert.Equal(t, 2, run.Counts.Delivered)
	require.Len(t, f.reports.created, 1, "the partial harvest still produces a report")

	var cutoffRecorded bool
	for _, e := range run.Errors {
		if e.Stage == entity.StageCollecting {
			cutoffRecorded = true
		}
	}
	assert.True(t, cutoffRecorded, "the cutoff must be recorded as a stage error")
}

func TestRun_FlakyDeliveryChannelRetriedToSuccess(t *testing.T) {
	now := time.Now()
	collectors := []Collector{
		&stubCollector{source: "newsapi", articles: makeArticles("newsapi", 2, 0, now)},
	}
	d := &flakyDeliverer{channel: "slack", failures: 1}

	cfg := DefaultConfig()
	cfg.Competitors = []entity.Competitor{{Name: "Acme", Tier: entity.TierHigh}}
	cfg.Retry = fastRetry()
	cfg.RunTimeout = 10 * time.Second
	f := newCustomFixture(t, cfg, collectors, []Deliverer{d}, nil)

	run, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Counts.Delivered)
	assert.Equal(t, 2, d.calls, "one transient failure plus one successful retry")
	assert.Equal(t, 1, d.sent)
	assert.Empty(t, run.Errors)
}

type flakyCollector struct {
	source   string
	failures int
	calls    int
	articles []*entity.Article
}

func (c *flakyCollector) Fetch(context.Context, entity.Competitor, entity.Window) ([]*entity.Article, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, faults.Transient(c.source, errors.New("503 upstream hiccup"))
	}
	return c.articles, nil
}
func (c *flakyCollector) Source() string { return c.source }

// downCollector fails every call with a transient error. Unlike
// flakyCollector it keeps no state, so concurrent fetches are safe.
type downCollector struct{ source string }

func (c *downCollector) Fetch(context.Context, entity.Competitor, entity.Window) ([]*entity.Article, error) {
	return nil, faults.Transient(c.source, errors.New("503 upstream outage"))
}
func (c *downCollector) Source() string { return c.source }

// collectorFunc builds fresh articles per call so concurrent fetches
// never share a backing array.
type collectorFunc struct {
	source string
	fn     func(entity.Competitor) []*entity.Article
}

func (c *collectorFunc) Fetch(_ context.Context, comp entity.Competitor, _ entity.Window) ([]*entity.Article, error) {
	return c.fn(comp), nil
}
func (c *collectorFunc) Source() string { return c.source }

type flakyDeliverer struct {
	channel  string
	failures int
	calls    int
	sent     int
}

func (d *flakyDeliverer) Deliver(context.Context, *entity.Report, []prioritize.Item) error {
	d.calls++
	if d.calls <= d.failures {
		return faults.Transient(d.channel, errors.New("webhook 503"))
	}
	d.sent++
	return nil
}
func (d *flakyDeliverer) Channel() string { return d.channel }
