// Package delivery sends generated reports to their channels: email via
// SMTP and a Slack incoming webhook summary. Delivery failures are
// surfaced to the pipeline, which keeps the report artifact on disk for
// manual recovery.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
	"compintel/internal/usecase/prioritize"
)

// SlackConfig configures the Slack webhook channel.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
	// TopItems is how many top-priority stories the Slack digest lists.
	TopItems int
}

// SlackDeliverer posts a short digest of the report to a Slack incoming
// webhook. The full report travels by email; Slack gets the headline
// view.
type SlackDeliverer struct {
	config     SlackConfig
	httpClient *http.Client
	// Slack webhooks allow roughly one message per second.
	limiter *rate.Limiter
}

func NewSlack(config SlackConfig) *SlackDeliverer {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.TopItems <= 0 {
		config.TopItems = 5
	}
	return &SlackDeliverer{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(1, 1),
	}
}

func (d *SlackDeliverer) Channel() string { return "slack" }

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string           `json:"type"`
	Text *slackTextObject `json:"text,omitempty"`
}

type slackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const maxSectionTextLength = 3000

// Deliver posts the digest. HTTP statuses map onto the fault taxonomy
// so the pipeline records a useful stage error.
func (d *SlackDeliverer) Deliver(ctx context.Context, report *entity.Report, items []prioritize.Item) error {
	if !d.config.Enabled {
		return nil
	}
	if d.config.WebhookURL == "" {
		return faults.Critical(d.Channel(), fmt.Errorf("webhook url not configured"))
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := d.buildPayload(report, items)
	body, err := json.Marshal(payload)
	if err != nil {
		return faults.Permanent(d.Channel(), fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return faults.Permanent(d.Channel(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return faults.FromHTTPStatus(d.Channel(), resp.StatusCode, string(detail))
	}

	slog.Info("report digest posted to slack",
		slog.String("run_id", report.RunID),
		slog.Int("items", len(items)))
	return nil
}

func (d *SlackDeliverer) buildPayload(report *entity.Report, items []prioritize.Item) slackPayload {
	header := fmt.Sprintf("Competitor intelligence report: %d articles (%s to %s)",
		report.ArticleCount,
		report.PeriodStart.Format("Jan 2"),
		report.PeriodEnd.Format("Jan 2"))

	var digest bytes.Buffer
	top := d.config.TopItems
	if top > len(items) {
		top = len(items)
	}
	for _, item := range items[:top] {
		fmt.Fprintf(&digest, "*%.1f* [%s] %s - <%s|%s>\n",
			item.Summary.PriorityScore,
			item.Summary.Category,
			item.Article.Competitor,
			item.Article.URL,
			item.Article.Title)
	}
	text := digest.String()
	if len(text) > maxSectionTextLength {
		text = text[:maxSectionTextLength-3] + "..."
	}

	blocks := []slackBlock{
		{Type: "section", Text: &slackTextObject{Type: "mrkdwn", Text: "*" + header + "*"}},
	}
	if text != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackTextObject{Type: "mrkdwn", Text: text},
		})
	}
	return slackPayload{Text: header, Blocks: blocks}
}
