// Package config loads the pipeline configuration from a YAML file.
// Secrets (API keys, webhook URLs, SMTP credentials) never live in the
// file; they come from environment variables read by the component that
// needs them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/ratelimit"
	"compintel/internal/resilience/retry"
	"compintel/internal/usecase/pipeline"
	"compintel/internal/usecase/prioritize"
	"compintel/internal/usecase/process"
)

// Duration parses YAML scalars like "30s" or "168h" into a
// time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full pipeline configuration.
type Config struct {
	Competitors []CompetitorConfig       `yaml:"competitors"`
	Pipeline    PipelineConfig           `yaml:"pipeline"`
	Batch       BatchConfig              `yaml:"batch"`
	Priority    PriorityConfig           `yaml:"priority"`
	Services    map[string]ServiceConfig `yaml:"services"`
	Report      ReportConfig             `yaml:"report"`
	Delivery    DeliveryConfig           `yaml:"delivery"`
}

// CompetitorConfig describes one tracked competitor.
type CompetitorConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Tier     string   `yaml:"tier"`
	PressURL string   `yaml:"press_url"`
	FeedURL  string   `yaml:"feed_url"`
}

// PipelineConfig configures the run orchestration.
type PipelineConfig struct {
	Lookback       Duration `yaml:"lookback"`
	RunTimeout     Duration `yaml:"run_timeout"`
	CollectWorkers int      `yaml:"collect_workers"`
	Schedule       string   `yaml:"schedule"`
}

// BatchConfig configures AI summarization batching.
type BatchConfig struct {
	Size        int `yaml:"size"`
	Concurrency int `yaml:"concurrency"`
}

// PriorityConfig configures scoring.
type PriorityConfig struct {
	Weights         prioritize.Weights `yaml:"weights"`
	SourceAuthority map[string]float64 `yaml:"source_authority"`
}

// ServiceConfig holds the per-service resilience settings. Services are
// keyed by the name the collectors and summarizers report (newsapi,
// rss, scraper, claude, openai, slack).
type ServiceConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	Capacity        int      `yaml:"capacity"`
	RefillPerSecond float64  `yaml:"refill_per_second"`
	WaitTimeout     Duration `yaml:"wait_timeout"`
}

type BreakerConfig struct {
	FailureThreshold uint32   `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialDelay   Duration `yaml:"initial_delay"`
	MaxDelay       Duration `yaml:"max_delay"`
	Multiplier     float64  `yaml:"multiplier"`
	JitterFraction float64  `yaml:"jitter_fraction"`
}

// ReportConfig configures artifact rendering.
type ReportConfig struct {
	OutputDir      string `yaml:"output_dir"`
	ExecutiveItems int    `yaml:"executive_items"`
}

// DeliveryConfig enables channels. Credentials come from the
// environment, not from this file.
type DeliveryConfig struct {
	Slack SlackConfig `yaml:"slack"`
	Email EmailConfig `yaml:"email"`
}

type SlackConfig struct {
	Enabled bool `yaml:"enabled"`
}

type EmailConfig struct {
	Enabled bool     `yaml:"enabled"`
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path comes from a CLI flag or a fixed default, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Lookback:       Duration(7 * 24 * time.Hour),
			RunTimeout:     Duration(30 * time.Minute),
			CollectWorkers: 4,
			Schedule:       "0 6 * * 1",
		},
		Batch: BatchConfig{
			Size:        5,
			Concurrency: 2,
		},
		Priority: PriorityConfig{
			Weights: prioritize.DefaultWeights(),
		},
		Report: ReportConfig{
			OutputDir:      "reports",
			ExecutiveItems: 5,
		},
	}
}

func (c *Config) validate() error {
	if len(c.Competitors) == 0 {
		return fmt.Errorf("at least one competitor is required")
	}
	for i, comp := range c.Competitors {
		if comp.Name == "" {
			return fmt.Errorf("competitor %d: name is required", i)
		}
		if len(comp.Keywords) == 0 && comp.PressURL == "" && comp.FeedURL == "" {
			return fmt.Errorf("competitor %q: needs keywords, a press_url, or a feed_url", comp.Name)
		}
	}

	if err := c.Priority.Weights.Validate(); err != nil {
		return err
	}
	for source, score := range c.Priority.SourceAuthority {
		if score < 0 || score > 10 {
			return fmt.Errorf("source_authority[%s]: score %v outside 0-10", source, score)
		}
	}

	if c.Pipeline.Lookback <= 0 {
		return fmt.Errorf("pipeline.lookback must be positive")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("pipeline.run_timeout must be positive")
	}
	if c.Pipeline.CollectWorkers <= 0 {
		return fmt.Errorf("pipeline.collect_workers must be positive")
	}
	if c.Batch.Size <= 0 || c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.size and batch.concurrency must be positive")
	}

	for name, svc := range c.Services {
		if svc.RateLimit.Capacity != 0 {
			if err := svc.rateLimit().Validate(); err != nil {
				return fmt.Errorf("services.%s.rate_limit: %w", name, err)
			}
		}
		if svc.Retry.MaxAttempts < 0 {
			return fmt.Errorf("services.%s.retry.max_attempts must not be negative", name)
		}
		if svc.Retry.Multiplier != 0 && svc.Retry.Multiplier < 1 {
			return fmt.Errorf("services.%s.retry.multiplier must be at least 1", name)
		}
	}
	return nil
}

// Entities converts the competitor list to domain entities.
func (c *Config) Entities() []entity.Competitor {
	out := make([]entity.Competitor, 0, len(c.Competitors))
	for _, comp := range c.Competitors {
		out = append(out, entity.Competitor{
			Name:     comp.Name,
			Keywords: comp.Keywords,
			Tier:     entity.ParseTier(comp.Tier),
			PressURL: comp.PressURL,
			FeedURL:  comp.FeedURL,
		})
	}
	return out
}

// PrioritizeConfig builds the scoring configuration.
func (c *Config) PrioritizeConfig() prioritize.Config {
	tiers := make(map[string]entity.PriorityTier, len(c.Competitors))
	for _, comp := range c.Competitors {
		tiers[comp.Name] = entity.ParseTier(comp.Tier)
	}
	return prioritize.Config{
		Weights:         c.Priority.Weights,
		SourceAuthority: c.Priority.SourceAuthority,
		CompetitorTiers: tiers,
		Lookback:        c.Pipeline.Lookback.Std(),
	}
}

// PipelineConfig builds the orchestrator configuration. The default
// retry policy applies to collectors; summarizer retries come from the
// service entry via ProcessConfig.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Competitors:    c.Entities(),
		Lookback:       c.Pipeline.Lookback.Std(),
		RunTimeout:     c.Pipeline.RunTimeout.Std(),
		CollectWorkers: c.Pipeline.CollectWorkers,
		Retry:          c.retryFor("collector"),
	}
}

// ProcessConfig builds the batch processor configuration for the named
// summarizer service.
func (c *Config) ProcessConfig(service string) process.Config {
	return process.Config{
		BatchSize:   c.Batch.Size,
		Concurrency: c.Batch.Concurrency,
		Retry:       c.retryFor(service),
	}
}

// RateLimits builds the per-service token bucket settings for every
// service with a configured rate limit.
func (c *Config) RateLimits() map[string]ratelimit.Config {
	out := make(map[string]ratelimit.Config, len(c.Services))
	for name, svc := range c.Services {
		if svc.RateLimit.Capacity == 0 {
			continue
		}
		out[name] = svc.rateLimit()
	}
	return out
}

// Breakers builds the per-service circuit breaker settings.
func (c *Config) Breakers() map[string]circuitbreaker.Config {
	out := make(map[string]circuitbreaker.Config, len(c.Services))
	for name, svc := range c.Services {
		if svc.Breaker.FailureThreshold == 0 {
			continue
		}
		out[name] = circuitbreaker.Config{
			Name:             name,
			FailureThreshold: svc.Breaker.FailureThreshold,
			Cooldown:         svc.Breaker.Cooldown.Std(),
		}
	}
	return out
}

func (c *Config) retryFor(service string) retry.Config {
	svc, ok := c.Services[service]
	if !ok || svc.Retry.MaxAttempts == 0 {
		return retry.DefaultConfig()
	}
	cfg := retry.Config{
		MaxAttempts:    svc.Retry.MaxAttempts,
		InitialDelay:   svc.Retry.InitialDelay.Std(),
		MaxDelay:       svc.Retry.MaxDelay.Std(),
		Multiplier:     svc.Retry.Multiplier,
		JitterFraction: svc.Retry.JitterFraction,
	}
	def := retry.DefaultConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = def.Multiplier
	}
	return cfg
}

func (svc ServiceConfig) rateLimit() ratelimit.Config {
	return ratelimit.Config{
		Capacity:        svc.RateLimit.Capacity,
		RefillPerSecond: svc.RateLimit.RefillPerSecond,
		WaitTimeout:     svc.RateLimit.WaitTimeout.Std(),
	}
}
