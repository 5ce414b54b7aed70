package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
	"compintel/internal/usecase/process"
)

// OpenAIConfig holds configuration for the OpenAI batch summarizer.
type OpenAIConfig struct {
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint, mainly for tests and proxies.
	BaseURL string
}

// LoadOpenAIConfig reads configuration from environment variables.
//
// Environment variables:
//   - OPENAI_MODEL: chat model identifier (default: gpt-4o-mini)
//   - OPENAI_BASE_URL: endpoint override (default: api.openai.com)
func LoadOpenAIConfig() OpenAIConfig {
	cfg := OpenAIConfig{
		Model:   "gpt-4o-mini",
		Timeout: 90 * time.Second,
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Model = model
	}
	cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	return cfg
}

// OpenAI summarizes article batches through the chat completions API.
type OpenAI struct {
	client          *openai.Client
	config          OpenAIConfig
	metricsRecorder BatchMetricsRecorder
}

func NewOpenAI(apiKey string) *OpenAI {
	config := LoadOpenAIConfig()

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	slog.Info("initialized openai summarizer", slog.String("model", config.Model))

	return &OpenAI{
		client:          openai.NewClientWithConfig(clientConfig),
		config:          config,
		metricsRecorder: NewPrometheusBatchMetrics(),
	}
}

func (o *OpenAI) Service() string { return "openai" }

func (o *OpenAI) SummarizeBatch(ctx context.Context, articles []*entity.Article) (map[int64]process.ItemSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	prompt := BuildBatchPrompt(articles)
	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.config.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "openai batch call failed",
			slog.Int("batch_size", len(articles)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, classifyOpenAIError(o.Service(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, faults.Transient(o.Service(), fmt.Errorf("empty response"))
	}

	results := ParseBatchResponse(resp.Choices[0].Message.Content, articles)
	o.metricsRecorder.RecordBatch(len(articles), len(results))
	o.metricsRecorder.RecordDuration(duration)

	slog.InfoContext(ctx, "openai batch completed",
		slog.Int("batch_size", len(articles)),
		slog.Int("parsed_items", len(results)),
		slog.Duration("duration", duration))
	return results, nil
}

func classifyOpenAIError(service string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return faults.FromHTTPStatus(service, apiErr.HTTPStatusCode, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return faults.Transient(service, err)
}
