// Package pipeline orchestrates one end-to-end intelligence run:
// collect articles per competitor, deduplicate, summarize in batches,
// prioritize, and deliver a report. Each stage degrades independently;
// only critical faults abort a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"compintel/internal/domain/entity"
	"compintel/internal/repository"
	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/faults"
	"compintel/internal/resilience/ratelimit"
	"compintel/internal/resilience/retry"
	"compintel/internal/usecase/dedup"
	"compintel/internal/usecase/prioritize"
	"compintel/internal/usecase/process"
)

// Collector fetches raw articles about one competitor from one upstream
// source.
type Collector interface {
	Fetch(ctx context.Context, competitor entity.Competitor, window entity.Window) ([]*entity.Article, error)
	Source() string
}

// ReportGenerator renders the ranked items into a report artifact on
// disk and returns its metadata.
type ReportGenerator interface {
	Generate(runID string, window entity.Window, items []prioritize.Item) (*entity.Report, error)
}

// Deliverer sends a generated report over one channel.
type Deliverer interface {
	Deliver(ctx context.Context, report *entity.Report, items []prioritize.Item) error
	Channel() string
}

// Config holds the orchestration knobs.
type Config struct {
	Competitors []entity.Competitor
	// Lookback is the collection window ending at run start.
	Lookback time.Duration
	// RunTimeout bounds the whole run.
	RunTimeout time.Duration
	// CollectWorkers caps concurrent competitor-source fetches.
	CollectWorkers int
	Retry          retry.Config
}

// DefaultConfig looks back 7 days with a 30 minute run deadline and 4
// concurrent fetches.
func DefaultConfig() Config {
	return Config{
		Lookback:       7 * 24 * time.Hour,
		RunTimeout:     30 * time.Minute,
		CollectWorkers: 4,
		Retry:          retry.DefaultConfig(),
	}
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	cfg         Config
	collectors  []Collector
	dedup       *dedup.Deduplicator
	processor   *process.BatchProcessor
	prioritizer *prioritize.Prioritizer
	generator   ReportGenerator
	deliverers  []Deliverer

	summaries repository.SummaryRepository
	runs      repository.RunRepository
	reports   repository.ReportRepository

	limiters *ratelimit.Registry
	breakers *circuitbreaker.Registry

	now func() time.Time
}

func New(
	cfg Config,
	collectors []Collector,
	dd *dedup.Deduplicator,
	processor *process.BatchProcessor,
	prioritizer *prioritize.Prioritizer,
	generator ReportGenerator,
	deliverers []Deliverer,
	summaries repository.SummaryRepository,
	runs repository.RunRepository,
	reports repository.ReportRepository,
	limiters *ratelimit.Registry,
	breakers *circuitbreaker.Registry,
) *Orchestrator {
	if cfg.CollectWorkers < 1 {
		cfg.CollectWorkers = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		cfg:         cfg,
		collectors:  collectors,
		dedup:       dd,
		processor:   processor,
		prioritizer: prioritizer,
		generator:   generator,
		deliverers:  deliverers,
		summaries:   summaries,
		runs:        runs,
		reports:     reports,
		limiters:    limiters,
		breakers:    breakers,
		now:         time.Now,
	}
}

// Run executes one pipeline pass. The returned record is always
// populated, even when err is non-nil; the record is also persisted with
// a non-cancelable context so deadline expiry cannot lose it.
func (o *Orchestrator) Run(ctx context.Context) (*entity.RunRecord, error) {
	run := &entity.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Status:    entity.RunStatusFailed,
	}
	if o.runs != nil {
		if err := o.runs.Create(ctx, run); err != nil {
			return run, fmt.Errorf("create run record: %w", err)
		}
	}

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	window := entity.Window{From: run.StartedAt.Add(-o.cfg.Lookback), To: run.StartedAt}
	slog.Info("pipeline run started",
		slog.String("run_id", run.ID),
		slog.Time("window_from", window.From),
		slog.Time("window_to", window.To),
		slog.Int("competitors", len(o.cfg.Competitors)))

	err := o.execute(ctx, run, window)

	run.FinishedAt = o.now()
	run.Status = o.finalStatus(run, err)
	o.persistRun(ctx, run)

	slog.Info("pipeline run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Int("collected", run.Counts.Collected),
		slog.Int("new", run.Counts.New),
		slog.Int("duplicates", run.Counts.Duplicates),
		slog.Int("summarized", run.Counts.Summarized),
		slog.Int("fallback_used", run.Counts.FallbackUsed),
		slog.Int("errors", len(run.Errors)))
	return run, err
}

func (o *Orchestrator) execute(ctx context.Context, run *entity.RunRecord, window entity.Window) error {
	// Stage 1: collect.
	articles, err := o.collect(ctx, run, window)
	if err != nil {
		return err
	}
	run.Counts.Collected = len(articles)
	if ctx.Err() != nil {
		// Deadline expired mid-collection: finish the remaining stages
		// under a short grace period instead of discarding the partial
		// harvest.
		var cancel context.CancelFunc
		ctx, cancel = graceContext(ctx)
		defer cancel()
	}

	// Stage 2: deduplicate.
	result, err := o.dedup.AddBatch(ctx, articles)
	run.Counts.New = len(result.New)
	run.Counts.Duplicates = result.Duplicates
	if err != nil {
		run.AddError(entity.StageDeduplicating, "store", err)
		return fmt.Errorf("deduplicate: %w", err)
	}
	if len(result.New) == 0 {
		slog.Info("no new articles this run", slog.String("run_id", run.ID))
		return nil
	}

	// Stage 3: summarize. Provider trouble surfaces as fallback counts,
	// not as an error.
	summaries, stats, err := o.processor.Process(ctx, result.New)
	if err != nil {
		run.AddError(entity.StageSummarizing, "processor", err)
		if len(summaries) == 0 {
			return fmt.Errorf("summarize: %w", err)
		}
		// Deadline expired mid-processing; in-flight batches degraded to
		// fallback, so the parallel slice is complete. Carry it forward.
		var cancel context.CancelFunc
		ctx, cancel = graceContext(ctx)
		defer cancel()
	}
	run.Counts.Summarized = stats.Summarized
	run.Counts.FallbackUsed = stats.FallbackUsed
	if stats.FallbackUsed > 0 {
		run.AddError(entity.StageSummarizing, "summarizer",
			fmt.Errorf("%d of %d articles used extractive fallback", stats.FallbackUsed, len(result.New)))
	}

	// Stage 4: prioritize and persist.
	items := make([]prioritize.Item, len(summaries))
	for i := range summaries {
		items[i] = prioritize.Item{Summary: summaries[i], Article: result.New[i]}
	}
	ranked := o.prioritizer.Rank(items)
	if o.summaries != nil {
		if err := o.summaries.CreateBatch(ctx, summaries); err != nil {
			run.AddError(entity.StagePrioritizing, "store", err)
			return fmt.Errorf("persist summaries: %w", err)
		}
	}

	// Stage 5: report and deliver.
	if err := o.report(ctx, run, window, ranked); err != nil {
		return err
	}
	return nil
}

// collect fans out over every competitor-collector pair. A failing
// source is contained: its articles are missing but the run continues.
// Only a critical fault aborts collection; the run deadline stops the
// fan-out but keeps what was already fetched.
func (o *Orchestrator) collect(ctx context.Context, run *entity.RunRecord, window entity.Window) ([]*entity.Article, error) {
	var mu sync.Mutex
	var articles []*entity.Article

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.CollectWorkers)

	for _, competitor := range o.cfg.Competitors {
		for _, collector := range o.collectors {
			competitor, collector := competitor, collector
			g.Go(func() error {
				fetched, err := o.fetchOne(gctx, competitor, collector, window)
				if err != nil {
					mu.Lock()
					run.AddError(entity.StageCollecting, collector.Source(), err)
					mu.Unlock()
					// An open breaker is containment doing its job: that
					// source sits out its cooldown while the others keep
					// collecting.
					if faults.IsCritical(err) && !errors.Is(err, circuitbreaker.ErrOpen) {
						// Misconfiguration: every subsequent call would
						// fail the same way.
						return err
					}
					slog.Warn("source failed, continuing without it",
						slog.String("source", collector.Source()),
						slog.String("competitor", competitor.Name),
						slog.Any("error", err))
					return nil
				}
				mu.Lock()
				articles = append(articles, fetched...)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		// The run deadline cut collection short. Whatever arrived before
		// the cutoff still flows through the remaining stages.
		run.AddError(entity.StageCollecting, "deadline", err)
		slog.Warn("collection cut short by run deadline",
			slog.Int("articles", len(articles)),
			slog.Any("error", err))
	}
	return articles, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, competitor entity.Competitor, collector Collector, window entity.Window) ([]*entity.Article, error) {
	service := collector.Source()
	var breaker *circuitbreaker.CircuitBreaker
	if o.breakers != nil {
		breaker = o.breakers.Breaker(service)
	}

	var fetched []*entity.Article
	err := retry.Do(ctx, o.cfg.Retry, breaker, func(ctx context.Context) error {
		if o.limiters != nil {
			if err := o.limiters.Acquire(ctx, service); err != nil {
				return err
			}
		}
		var fetchErr error
		fetched, fetchErr = collector.Fetch(ctx, competitor, window)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	// Stamp provenance and drop anything outside the window.
	kept := fetched[:0]
	for _, a := range fetched {
		if a.Source == "" {
			a.Source = service
		}
		if a.Competitor == "" {
			a.Competitor = competitor.Name
		}
		if window.Contains(a.PublishedAt) {
			kept = append(kept, a)
		}
	}
	return kept, nil
}

func (o *Orchestrator) report(ctx context.Context, run *entity.RunRecord, window entity.Window, items []prioritize.Item) error {
	if o.generator == nil {
		return nil
	}
	report, err := o.generator.Generate(run.ID, window, items)
	if err != nil {
		run.AddError(entity.StageReporting, "generator", err)
		return fmt.Errorf("generate report: %w", err)
	}
	if o.reports != nil {
		if err := o.reports.Create(ctx, report); err != nil {
			run.AddError(entity.StageReporting, "store", err)
			return fmt.Errorf("persist report: %w", err)
		}
	}

	var deliveryErrs []error
	for _, d := range o.deliverers {
		d := d
		// A flaky channel gets the same bounded retry as any other
		// transient failure before it counts as dead.
		err := retry.Do(ctx, o.cfg.Retry, nil, func(ctx context.Context) error {
			return d.Deliver(ctx, report, items)
		})
		if err != nil {
			// The artifact is already on disk and the report row exists,
			// so the intelligence survives a dead channel.
			run.AddError(entity.StageReporting, d.Channel(), err)
			deliveryErrs = append(deliveryErrs, fmt.Errorf("%s: %w", d.Channel(), err))
			continue
		}
		run.Counts.Delivered = len(items)
	}

	status := entity.ReportStatusSent
	if len(deliveryErrs) == len(o.deliverers) && len(o.deliverers) > 0 {
		status = entity.ReportStatusFailed
	}
	report.Status = status
	if o.reports != nil {
		if err := o.reports.UpdateStatus(ctx, report.ID, status); err != nil {
			run.AddError(entity.StageReporting, "store", err)
		}
	}
	if status == entity.ReportStatusFailed {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(deliveryErrs...))
	}
	return nil
}

// ErrDeliveryFailed marks a run whose report could not be sent on any
// channel. The artifact and the run record are still persisted.
var ErrDeliveryFailed = errors.New("report delivery failed on every channel")

// finalStatus derives the run outcome. Critical faults and stage-level
// aborts mean failure; contained errors or fallback use downgrade a
// success to partial.
func (o *Orchestrator) finalStatus(run *entity.RunRecord, err error) entity.RunStatus {
	if err != nil {
		// A dead delivery channel still produced and persisted the
		// report, so the run partially succeeded.
		if errors.Is(err, ErrDeliveryFailed) && run.Counts.Summarized+run.Counts.FallbackUsed > 0 {
			return entity.RunStatusPartialSuccess
		}
		return entity.RunStatusFailed
	}
	if len(run.Errors) > 0 {
		return entity.RunStatusPartialSuccess
	}
	return entity.RunStatusSuccess
}

// graceTimeout bounds the closing stages once the run deadline has
// already expired.
const graceTimeout = 30 * time.Second

// graceContext detaches from the expired run deadline so partial
// results can still be persisted, reported and delivered.
func graceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), graceTimeout)
}

// persistRun writes the final record with a context that survives the
// run deadline.
func (o *Orchestrator) persistRun(ctx context.Context, run *entity.RunRecord) {
	if o.runs == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.runs.Finish(persistCtx, run); err != nil {
		slog.Error("failed to persist run record",
			slog.String("run_id", run.ID),
			slog.Any("error", err))
	}
}
