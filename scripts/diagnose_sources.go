// Diagnose the configured competitor sources: probe each feed and press
// URL and report reachability, item counts and latest publish dates as
// JSON. Useful when a competitor's section of the report goes quiet.
//
// Usage:
//
//	go run ./scripts/diagnose_sources.go [config.yaml]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	"compintel/internal/config"
)

type sourceDiagnostic struct {
	Competitor   string `json:"competitor"`
	Kind         string `json:"kind"` // "feed" or "press"
	URL          string `json:"url"`
	Status       string `json:"status"` // "OK", "HTTP_ERROR", "PARSE_ERROR", "EMPTY", "TIMEOUT"
	HTTPCode     int    `json:"http_code,omitempty"`
	ItemCount    int    `json:"item_count,omitempty"`
	LatestDate   string `json:"latest_date,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
}

func main() {
	path := "config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var results []sourceDiagnostic
	for _, comp := range cfg.Competitors {
		if comp.FeedURL != "" {
			results = append(results, probeFeed(ctx, comp.Name, comp.FeedURL))
		}
		if comp.PressURL != "" {
			results = append(results, probePage(ctx, comp.Name, comp.PressURL))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		fmt.Fprintf(os.Stderr, "encode results: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		if r.Status != "OK" {
			os.Exit(2)
		}
	}
}

func probeFeed(ctx context.Context, competitor, url string) sourceDiagnostic {
	diag := sourceDiagnostic{Competitor: competitor, Kind: "feed", URL: url}
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	feed, err := gofeed.NewParser().ParseURLWithContext(url, probeCtx)
	diag.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		if httpErr, ok := err.(gofeed.HTTPError); ok {
			diag.Status = "HTTP_ERROR"
			diag.HTTPCode = httpErr.StatusCode
		} else if probeCtx.Err() != nil {
			diag.Status = "TIMEOUT"
		} else {
			diag.Status = "PARSE_ERROR"
		}
		diag.ErrorMessage = err.Error()
		return diag
	}

	diag.ItemCount = len(feed.Items)
	if diag.ItemCount == 0 {
		diag.Status = "EMPTY"
		return diag
	}
	diag.Status = "OK"
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && item.PublishedParsed.Format(time.RFC3339) > diag.LatestDate {
			diag.LatestDate = item.PublishedParsed.Format(time.RFC3339)
		}
	}
	return diag
}

func probePage(ctx context.Context, competitor, url string) sourceDiagnostic {
	diag := sourceDiagnostic{Competitor: competitor, Kind: "press", URL: url}
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		diag.Status = "HTTP_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}
	resp, err := http.DefaultClient.Do(req)
	diag.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		if probeCtx.Err() != nil {
			diag.Status = "TIMEOUT"
		} else {
			diag.Status = "HTTP_ERROR"
		}
		diag.ErrorMessage = err.Error()
		return diag
	}
	defer func() { _ = resp.Body.Close() }()

	diag.HTTPCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		diag.Status = "HTTP_ERROR"
		return diag
	}
	diag.Status = "OK"
	return diag
}
