package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
)

// maxScrapedPages caps how many linked articles one press page fetch
// will follow.
const maxScrapedPages = 5

// WebScraperCollector scrapes a competitor's press or newsroom page:
// it lists linked articles with goquery and extracts readable text from
// each with go-readability.
type WebScraperCollector struct {
	client *http.Client
}

func NewWebScraper(client *http.Client) *WebScraperCollector {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebScraperCollector{client: client}
}

func (c *WebScraperCollector) Source() string { return "webscraper" }

func (c *WebScraperCollector) Fetch(ctx context.Context, competitor entity.Competitor, window entity.Window) ([]*entity.Article, error) {
	if competitor.PressURL == "" {
		return nil, nil
	}

	links, err := c.listArticleLinks(ctx, competitor.PressURL)
	if err != nil {
		return nil, err
	}

	articles := make([]*entity.Article, 0, len(links))
	for _, link := range links {
		article, err := c.scrapeArticle(ctx, competitor, link)
		if err != nil {
			// One broken article page should not sink the whole press
			// page.
			slog.Warn("skipping unreadable article page",
				slog.String("url", link),
				slog.Any("error", err))
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// listArticleLinks pulls candidate article URLs off the press page,
// de-duplicated and resolved against the page URL, newest-first as they
// appear in the document.
func (c *WebScraperCollector) listArticleLinks(ctx context.Context, pressURL string) ([]string, error) {
	body, err := c.get(ctx, pressURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, faults.Permanent(c.Source(), fmt.Errorf("parse press page: %w", err))
	}

	base, err := url.Parse(pressURL)
	if err != nil {
		return nil, faults.Permanent(c.Source(), err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("article a[href], .press-release a[href], .news-item a[href], main a[href]").
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			resolved := resolveLink(base, href)
			if resolved == "" || seen[resolved] || resolved == pressURL {
				return true
			}
			seen[resolved] = true
			links = append(links, resolved)
			return len(links) < maxScrapedPages
		})
	return links, nil
}

func (c *WebScraperCollector) scrapeArticle(ctx context.Context, competitor entity.Competitor, link string) (*entity.Article, error) {
	body, err := c.get(ctx, link)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	pageURL, err := url.Parse(link)
	if err != nil {
		return nil, faults.Permanent(c.Source(), err)
	}
	page, err := readability.FromReader(body, pageURL)
	if err != nil {
		return nil, faults.Permanent(c.Source(), fmt.Errorf("extract article: %w", err))
	}
	if page.Title == "" || page.TextContent == "" {
		return nil, faults.Permanent(c.Source(), fmt.Errorf("no readable content"))
	}

	publishedAt := time.Now()
	if page.PublishedTime != nil {
		publishedAt = *page.PublishedTime
	}
	return &entity.Article{
		Competitor:  competitor.Name,
		URL:         link,
		Title:       page.Title,
		Content:     strings.TrimSpace(page.TextContent),
		Source:      c.Source(),
		PublishedAt: publishedAt,
	}, nil
}

func (c *WebScraperCollector) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, faults.Permanent(c.Source(), err)
	}
	req.Header.Set("User-Agent", feedUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, faults.FromHTTPStatus(c.Source(), resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
