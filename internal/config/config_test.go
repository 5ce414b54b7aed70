package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compintel/internal/domain/entity"
)

const validYAML = `
competitors:
  - name: Acme
    keywords: ["acme corp", "acme ai"]
    tier: high
    feed_url: https://acme.example/feed.xml
  - name: Borealis
    keywords: ["borealis"]
    tier: low
    press_url: https://borealis.example/press

pipeline:
  lookback: 168h
  run_timeout: 20m
  collect_workers: 3
  schedule: "0 7 * * 1"

batch:
  size: 8
  concurrency: 3

priority:
  weights:
    recency: 0.4
    source_authority: 0.2
    category_importance: 0.2
    competitor_priority: 0.2
  source_authority:
    newsapi: 6
    rss: 7.5

services:
  newsapi:
    rate_limit:
      capacity: 5
      refill_per_second: 1
      wait_timeout: 30s
    breaker:
      failure_threshold: 5
      cooldown: 1m
  claude:
    retry:
      max_attempts: 4
      initial_delay: 2s
      multiplier: 2

report:
  output_dir: /var/reports
  executive_items: 3

delivery:
  slack:
    enabled: true
  email:
    enabled: true
    host: smtp.example.com
    port: 587
    from: intel@example.com
    to: [team@example.com]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.Competitors, 2)
	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.Lookback.Std())
	assert.Equal(t, 20*time.Minute, cfg.Pipeline.RunTimeout.Std())
	assert.Equal(t, "0 7 * * 1", cfg.Pipeline.Schedule)
	assert.Equal(t, 8, cfg.Batch.Size)
	assert.Equal(t, "/var/reports", cfg.Report.OutputDir)
	assert.True(t, cfg.Delivery.Slack.Enabled)
	assert.Equal(t, []string{"team@example.com"}, cfg.Delivery.Email.To)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
competitors:
  - name: Acme
    keywords: ["acme"]
`))
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.Lookback.Std())
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.RunTimeout.Std())
	assert.Equal(t, 4, cfg.Pipeline.CollectWorkers)
	assert.Equal(t, 5, cfg.Batch.Size)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
	assert.NoError(t, cfg.Priority.Weights.Validate())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no competitors",
			yaml:    "pipeline:\n  lookback: 1h\n",
			wantErr: "at least one competitor",
		},
		{
			name: "competitor without sources",
			yaml: `
competitors:
  - name: Acme
`,
			wantErr: "needs keywords",
		},
		{
			name: "weights do not sum to one",
			yaml: `
competitors:
  - name: Acme
    keywords: ["acme"]
priority:
  weights:
    recency: 0.9
    source_authority: 0.9
    category_importance: 0.1
    competitor_priority: 0.1
`,
			wantErr: "sum to 1.0",
		},
		{
			name: "source authority out of range",
			yaml: `
competitors:
  - name: Acme
    keywords: ["acme"]
priority:
  source_authority:
    rss: 12
`,
			wantErr: "outside 0-10",
		},
		{
			name: "bad duration",
			yaml: `
competitors:
  - name: Acme
    keywords: ["acme"]
pipeline:
  lookback: soon
`,
			wantErr: "invalid duration",
		},
		{
			name: "invalid rate limit",
			yaml: `
competitors:
  - name: Acme
    keywords: ["acme"]
services:
  newsapi:
    rate_limit:
      capacity: 3
      refill_per_second: -1
`,
			wantErr: "services.newsapi.rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestEntities(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	comps := cfg.Entities()
	require.Len(t, comps, 2)
	assert.Equal(t, entity.TierHigh, comps[0].Tier)
	assert.Equal(t, "https://acme.example/feed.xml", comps[0].FeedURL)
	assert.Equal(t, entity.TierLow, comps[1].Tier)
}

func TestPrioritizeConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	pc := cfg.PrioritizeConfig()
	assert.Equal(t, entity.TierHigh, pc.CompetitorTiers["Acme"])
	assert.Equal(t, 7.5, pc.SourceAuthority["rss"])
	assert.Equal(t, 7*24*time.Hour, pc.Lookback)
}

func TestResilienceConfigs(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	limits := cfg.RateLimits()
	require.Contains(t, limits, "newsapi")
	assert.Equal(t, 5, limits["newsapi"].Capacity)
	assert.Equal(t, 30*time.Second, limits["newsapi"].WaitTimeout)
	assert.NotContains(t, limits, "claude")

	breakers := cfg.Breakers()
	require.Contains(t, breakers, "newsapi")
	assert.Equal(t, uint32(5), breakers["newsapi"].FailureThreshold)
	assert.Equal(t, time.Minute, breakers["newsapi"].Cooldown)

	claude := cfg.ProcessConfig("claude")
	assert.Equal(t, 8, claude.BatchSize)
	assert.Equal(t, 4, claude.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, claude.Retry.InitialDelay)
	// Unset retry fields fall back to the defaults.
	assert.Equal(t, 30*time.Second, claude.Retry.MaxDelay)

	// Unknown service gets the default policy.
	def := cfg.ProcessConfig("openai")
	assert.Equal(t, 3, def.Retry.MaxAttempts)
}
