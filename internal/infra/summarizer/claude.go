// Package summarizer provides AI-backed batch summarization adapters
// for the processing stage: Claude (Anthropic) and OpenAI chat models
// behind the same interface, plus a no-op implementation for local
// development.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
	"compintel/internal/usecase/process"
)

// ClaudeConfig holds configuration for the Claude batch summarizer.
type ClaudeConfig struct {
	// Model is the Claude API model identifier.
	Model string

	// MaxTokens caps the API response size. Scaled for a whole batch,
	// not one article.
	MaxTokens int

	// Timeout bounds a single batch call.
	Timeout time.Duration
}

// LoadClaudeConfig reads configuration from environment variables with
// validated fallbacks.
//
// Environment variables:
//   - CLAUDE_MODEL: model identifier (default: current Sonnet)
//   - SUMMARIZER_MAX_TOKENS: response token budget (default: 2048, range 256-8192)
func LoadClaudeConfig() ClaudeConfig {
	cfg := ClaudeConfig{
		Model:     string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens: defaultMaxTokens,
		Timeout:   90 * time.Second,
	}

	if model := os.Getenv("CLAUDE_MODEL"); model != "" {
		cfg.Model = model
	}
	if envTokens := os.Getenv("SUMMARIZER_MAX_TOKENS"); envTokens != "" {
		parsed, err := strconv.Atoi(envTokens)
		switch {
		case err != nil:
			slog.Warn("Invalid SUMMARIZER_MAX_TOKENS format, using default",
				slog.String("value", envTokens),
				slog.Int("default", defaultMaxTokens))
		case parsed < minMaxTokens || parsed > maxMaxTokens:
			slog.Warn("SUMMARIZER_MAX_TOKENS out of valid range, using default",
				slog.Int("value", parsed),
				slog.Int("min", minMaxTokens),
				slog.Int("max", maxMaxTokens),
				slog.Int("default", defaultMaxTokens))
		default:
			cfg.MaxTokens = parsed
		}
	}
	return cfg
}

// Claude summarizes article batches through Anthropic's Messages API.
// Retry, rate limiting and circuit breaking are applied by the batch
// processor around it; this type only calls and classifies.
type Claude struct {
	client          anthropic.Client
	config          ClaudeConfig
	metricsRecorder BatchMetricsRecorder
}

func NewClaude(apiKey string) *Claude {
	config := LoadClaudeConfig()

	slog.Info("initialized claude summarizer",
		slog.String("model", config.Model),
		slog.Int("max_tokens", config.MaxTokens))

	return &Claude{
		client:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		config:          config,
		metricsRecorder: NewPrometheusBatchMetrics(),
	}
}

func (c *Claude) Service() string { return "claude" }

// SummarizeBatch sends the whole batch in one prompt and maps the reply
// back per article.
func (c *Claude) SummarizeBatch(ctx context.Context, articles []*entity.Article) (map[int64]process.ItemSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	prompt := BuildBatchPrompt(articles)
	start := time.Now()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "claude batch call failed",
			slog.Int("batch_size", len(articles)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, classifyAnthropicError(c.Service(), err)
	}
	if len(message.Content) == 0 {
		return nil, faults.Transient(c.Service(), fmt.Errorf("empty response"))
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return nil, faults.Transient(c.Service(), fmt.Errorf("unexpected response content type"))
	}

	results := ParseBatchResponse(textBlock.Text, articles)
	c.metricsRecorder.RecordBatch(len(articles), len(results))
	c.metricsRecorder.RecordDuration(duration)

	slog.InfoContext(ctx, "claude batch completed",
		slog.Int("batch_size", len(articles)),
		slog.Int("parsed_items", len(results)),
		slog.Duration("duration", duration))
	return results, nil
}

// classifyAnthropicError maps SDK errors onto the fault taxonomy using
// the HTTP status when one is available.
func classifyAnthropicError(service string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return faults.FromHTTPStatus(service, apiErr.StatusCode, apiErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	// Transport-level failures without a status are worth retrying.
	return faults.Transient(service, err)
}
