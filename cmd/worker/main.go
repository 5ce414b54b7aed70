// The worker runs the competitor intelligence pipeline on a cron
// schedule and serves health and metrics endpoints while idle.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"compintel/internal/config"
	pgRepo "compintel/internal/infra/adapter/persistence/postgres"
	"compintel/internal/infra/collector"
	"compintel/internal/infra/db"
	"compintel/internal/infra/delivery"
	"compintel/internal/infra/summarizer"
	workerPkg "compintel/internal/infra/worker"
	"compintel/internal/observability/logging"
	"compintel/internal/report"
	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/ratelimit"
	"compintel/internal/usecase/dedup"
	"compintel/internal/usecase/pipeline"
	"compintel/internal/usecase/process"
	"compintel/internal/usecase/prioritize"
	pkgconfig "compintel/pkg/config"
)

func main() {
	once := flag.Bool("once", false, "run one pipeline pass immediately and exit")
	flag.Parse()

	_ = godotenv.Load()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfgPath := pkgconfig.GetEnvString("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load configuration",
			slog.String("path", cfgPath),
			slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.String("path", cfgPath),
		slog.Int("competitors", len(cfg.Competitors)))

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiters := ratelimit.NewRegistry(cfg.RateLimits())
	breakers := circuitbreaker.NewRegistry(cfg.Breakers())

	workerCfg := workerPkg.LoadConfigFromEnv(logger)
	// The YAML schedule applies unless CRON_SCHEDULE overrides it.
	if os.Getenv("CRON_SCHEDULE") == "" && cfg.Pipeline.Schedule != "" {
		workerCfg.Schedule = cfg.Pipeline.Schedule
	}
	if err := workerCfg.Validate(); err != nil {
		logger.Error("invalid worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("schedule", workerCfg.Schedule),
		slog.String("timezone", workerCfg.Timezone),
		slog.Int("admin_port", workerCfg.AdminPort))

	admin := workerPkg.NewAdminServer(fmt.Sprintf(":%d", workerCfg.AdminPort), logger, breakers)
	go func() {
		if err := admin.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", slog.Any("error", err))
		}
	}()

	orchestrator := buildPipeline(logger, cfg, database, limiters, breakers)
	metrics := workerPkg.NewRunMetrics()

	if *once {
		if err := runPipeline(ctx, logger, orchestrator, metrics); err != nil {
			os.Exit(1)
		}
		return
	}
	startCron(ctx, logger, orchestrator, workerCfg, metrics, admin)
}

// buildPipeline wires all stages into the orchestrator.
func buildPipeline(
	logger *slog.Logger,
	cfg *config.Config,
	database *sql.DB,
	limiters *ratelimit.Registry,
	breakers *circuitbreaker.Registry,
) *pipeline.Orchestrator {
	articleRepo := pgRepo.NewArticleRepo(database)
	summaryRepo := pgRepo.NewSummaryRepo(database)
	runRepo := pgRepo.NewRunRepo(database)
	reportRepo := pgRepo.NewReportRepo(database)

	collectors := createCollectors(logger)
	sum := createSummarizer(logger)
	processor := process.NewBatchProcessor(
		sum,
		limiters.Bucket(sum.Service()),
		breakers.Breaker(sum.Service()),
		cfg.ProcessConfig(sum.Service()),
	)

	prioritizer, err := prioritize.New(cfg.PrioritizeConfig(), nil)
	if err != nil {
		logger.Error("invalid priority configuration", slog.Any("error", err))
		os.Exit(1)
	}

	generator, err := report.NewGenerator(report.Config{
		OutputDir:      cfg.Report.OutputDir,
		ExecutiveItems: cfg.Report.ExecutiveItems,
	})
	if err != nil {
		logger.Error("failed to create report generator", slog.Any("error", err))
		os.Exit(1)
	}

	return pipeline.New(
		cfg.PipelineConfig(),
		collectors,
		dedup.New(articleRepo),
		processor,
		prioritizer,
		generator,
		createDeliverers(logger, cfg),
		summaryRepo,
		runRepo,
		reportRepo,
		limiters,
		breakers,
	)
}

// createCollectors builds the enabled collectors. RSS and the web
// scraper are always on; NewsAPI requires an API key.
func createCollectors(logger *slog.Logger) []pipeline.Collector {
	client := createHTTPClient()

	collectors := []pipeline.Collector{
		collector.NewRSS(client),
		collector.NewWebScraper(client),
	}

	if apiKey := os.Getenv("NEWSAPI_API_KEY"); apiKey != "" {
		baseURL := pkgconfig.GetEnvString("NEWSAPI_BASE_URL", "")
		collectors = append(collectors, collector.NewNewsAPI(client, apiKey, baseURL))
		logger.Info("NewsAPI collector enabled")
	} else {
		logger.Info("NewsAPI collector disabled, NEWSAPI_API_KEY not set")
	}

	return collectors
}

// createSummarizer selects the AI provider from SUMMARIZER_TYPE. The
// value "none" disables AI summarization entirely; every article then
// takes the extractive fallback.
func createSummarizer(logger *slog.Logger) process.Summarizer {
	summarizerType := pkgconfig.GetEnvString("SUMMARIZER_TYPE", "claude")

	switch summarizerType {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when SUMMARIZER_TYPE=claude")
			os.Exit(1)
		}
		logger.Info("using Claude for summarization")
		return summarizer.NewClaude(apiKey)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when SUMMARIZER_TYPE=openai")
			os.Exit(1)
		}
		logger.Info("using OpenAI for summarization")
		return summarizer.NewOpenAI(apiKey)
	case "none":
		logger.Warn("AI summarization disabled, all summaries will be extractive")
		return summarizer.NewNoOp()
	default:
		logger.Error("invalid SUMMARIZER_TYPE",
			slog.String("type", summarizerType),
			slog.String("expected", "claude, openai or none"))
		os.Exit(1)
		return nil
	}
}

// createDeliverers builds the enabled delivery channels. A run with no
// channels still persists its report artifact.
func createDeliverers(logger *slog.Logger, cfg *config.Config) []pipeline.Deliverer {
	var deliverers []pipeline.Deliverer

	slackCfg := loadSlackConfig(logger, cfg)
	if slackCfg.Enabled {
		deliverers = append(deliverers, delivery.NewSlack(slackCfg))
		logger.Info("Slack delivery enabled")
	}

	if cfg.Delivery.Email.Enabled {
		deliverers = append(deliverers, delivery.NewEmail(delivery.EmailConfig{
			Enabled:  true,
			Host:     cfg.Delivery.Email.Host,
			Port:     cfg.Delivery.Email.Port,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     cfg.Delivery.Email.From,
			To:       cfg.Delivery.Email.To,
		}))
		logger.Info("email delivery enabled",
			slog.String("host", cfg.Delivery.Email.Host),
			slog.Int("recipients", len(cfg.Delivery.Email.To)))
	}

	if len(deliverers) == 0 {
		logger.Warn("no delivery channels enabled, reports will only be written to disk")
	}
	return deliverers
}

// loadSlackConfig validates the webhook URL before enabling the
// channel. A malformed webhook disables Slack instead of failing runs
// later.
func loadSlackConfig(logger *slog.Logger, cfg *config.Config) delivery.SlackConfig {
	if !cfg.Delivery.Slack.Enabled {
		return delivery.SlackConfig{Enabled: false}
	}

	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling Slack delivery")
		return delivery.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Slack webhook URL, disabling Slack delivery", slog.Any("error", err))
		return delivery.SlackConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling Slack delivery")
		return delivery.SlackConfig{Enabled: false}
	}
	if u.Host != "hooks.slack.com" {
		logger.Warn("invalid Slack webhook host, disabling Slack delivery", slog.String("host", u.Host))
		return delivery.SlackConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("invalid Slack webhook path, disabling Slack delivery", slog.String("path", u.Path))
		return delivery.SlackConfig{Enabled: false}
	}

	return delivery.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// createHTTPClient builds the shared collector HTTP client with
// connection pooling and TLS 1.2+.
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// startCron schedules pipeline runs and blocks until shutdown.
func startCron(
	ctx context.Context,
	logger *slog.Logger,
	orchestrator *pipeline.Orchestrator,
	cfg workerPkg.Config,
	metrics *workerPkg.RunMetrics,
	admin *workerPkg.AdminServer,
) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		_ = runPipeline(ctx, logger, orchestrator, metrics)
	}); err != nil {
		logger.Error("failed to schedule pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	admin.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.Schedule),
		slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	admin.SetReady(false)
	logger.Info("shutting down, waiting for running job")
	<-c.Stop().Done()
	logger.Info("worker stopped")
}

// runPipeline executes one run. The run timeout is enforced inside the
// orchestrator.
func runPipeline(ctx context.Context, logger *slog.Logger, orchestrator *pipeline.Orchestrator, metrics *workerPkg.RunMetrics) error {
	logger.Info("pipeline run starting")

	run, err := orchestrator.Run(ctx)
	metrics.RecordRun(run)

	runLogger := logging.WithRun(logger, run.ID)
	if err != nil {
		runLogger.Error("pipeline run failed", slog.Any("error", err))
		return err
	}

	runLogger.Info("pipeline run completed",
		slog.String("status", string(run.Status)),
		slog.Int("collected", run.Counts.Collected),
		slog.Int("new", run.Counts.New),
		slog.Int("duplicates", run.Counts.Duplicates),
		slog.Int("summarized", run.Counts.Summarized),
		slog.Int("fallback_used", run.Counts.FallbackUsed),
		slog.Int("delivered", run.Counts.Delivered),
		slog.Int("errors", len(run.Errors)),
		slog.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return nil
}
