// Package entity defines the core domain entities for the competitor
// intelligence pipeline: collected articles, their summaries, competitors,
// and execution run records.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Article represents a single piece of competitor news collected from an
// external source. Articles are immutable once stored; uniqueness is
// enforced both by content fingerprint and by the (competitor, URL) pair.
type Article struct {
	ID          int64
	Competitor  string
	URL         string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
	Fingerprint string
	CollectedAt time.Time
}

// Fingerprint returns the stable content hash used for cross-run
// deduplication: a SHA-256 digest over the normalized title and body.
// Trivial formatting differences between sources (case, surrounding or
// repeated whitespace) produce the same fingerprint.
func Fingerprint(title, content string) string {
	normalized := NormalizeText(title) + "\n" + NormalizeText(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases the input, trims surrounding whitespace, and
// collapses internal whitespace runs to a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// WithFingerprint returns a copy of the article with its fingerprint
// derived from the current title and content.
func (a Article) WithFingerprint() Article {
	a.Fingerprint = Fingerprint(a.Title, a.Content)
	return a
}

// Window is a half-open collection time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}
