package collector

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
)

const feedUserAgent = "CompIntelBot/1.0"

// RSSCollector reads a competitor's press feed when one is configured.
type RSSCollector struct {
	client *http.Client
}

func NewRSS(client *http.Client) *RSSCollector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RSSCollector{client: client}
}

func (c *RSSCollector) Source() string { return "rss" }

// Fetch parses the competitor's feed. A competitor without a feed URL
// yields nothing rather than an error; only configured feeds can fail.
func (c *RSSCollector) Fetch(ctx context.Context, competitor entity.Competitor, window entity.Window) ([]*entity.Article, error) {
	if competitor.FeedURL == "" {
		return nil, nil
	}

	fp := gofeed.NewParser()
	fp.UserAgent = feedUserAgent
	fp.Client = c.client

	feed, err := fp.ParseURLWithContext(competitor.FeedURL, ctx)
	if err != nil {
		if httpErr, ok := err.(gofeed.HTTPError); ok {
			return nil, faults.FromHTTPStatus(c.Source(), httpErr.StatusCode, httpErr.Status)
		}
		// Malformed XML or a dead host; network errors classify on their
		// own, parse errors are permanent for this window.
		return nil, faults.Permanent(c.Source(), err)
	}

	articles := make([]*entity.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}
		pubAt := time.Now()
		if item.PublishedParsed != nil {
			pubAt = *item.PublishedParsed
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		articles = append(articles, &entity.Article{
			Competitor:  competitor.Name,
			URL:         item.Link,
			Title:       item.Title,
			Content:     content,
			Source:      c.Source(),
			PublishedAt: pubAt,
		})
	}
	return articles, nil
}
