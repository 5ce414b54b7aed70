// Package collector implements the upstream article sources: the NewsAPI
// search endpoint, competitor RSS press feeds, and a press-page web
// scraper. Collectors only fetch and map; rate limiting, retries and
// circuit breaking are applied by the pipeline around them.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
)

const (
	newsAPIBaseURL = "https://newsapi.org/v2"
	// newsAPIPageSize bounds one response; competitor news volume rarely
	// exceeds this within a weekly window.
	newsAPIPageSize = 50
)

// NewsAPICollector queries the NewsAPI "everything" endpoint for each
// competitor's search terms.
type NewsAPICollector struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewNewsAPI builds a collector. baseURL overrides the production
// endpoint; pass empty for the default.
func NewNewsAPI(client *http.Client, apiKey, baseURL string) *NewsAPICollector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = newsAPIBaseURL
	}
	return &NewsAPICollector{client: client, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *NewsAPICollector) Source() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Content     string    `json:"content"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch searches for articles mentioning the competitor inside the
// window. HTTP failure statuses map onto the fault taxonomy so the
// caller can tell a rate limit from a revoked key.
func (c *NewsAPICollector) Fetch(ctx context.Context, competitor entity.Competitor, window entity.Window) ([]*entity.Article, error) {
	if c.apiKey == "" {
		return nil, faults.Critical(c.Source(), fmt.Errorf("api key not configured"))
	}

	q := url.Values{}
	q.Set("q", strings.Join(competitor.SearchTerms(), " OR "))
	q.Set("from", window.From.UTC().Format(time.RFC3339))
	q.Set("to", window.To.UTC().Format(time.RFC3339))
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", fmt.Sprint(newsAPIPageSize))
	q.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, faults.Permanent(c.Source(), err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors classify through the taxonomy's net.Error rules.
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, faults.FromHTTPStatus(c.Source(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// A 200 with an unparsable body is a malformed payload, not an
		// outage; retrying the same request would decode the same garbage.
		return nil, faults.Permanent(c.Source(), fmt.Errorf("decode response: %w", err))
	}
	if parsed.Status != "ok" {
		return nil, faults.Permanent(c.Source(), fmt.Errorf("api error %s: %s", parsed.Code, parsed.Message))
	}

	articles := make([]*entity.Article, 0, len(parsed.Articles))
	for _, item := range parsed.Articles {
		if item.Title == "" || item.URL == "" {
			continue
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		articles = append(articles, &entity.Article{
			Competitor:  competitor.Name,
			URL:         item.URL,
			Title:       item.Title,
			Content:     content,
			Source:      c.Source(),
			PublishedAt: item.PublishedAt,
		})
	}
	return articles, nil
}
