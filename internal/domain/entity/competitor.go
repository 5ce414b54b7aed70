package entity

import "strings"

// PriorityTier is the configured importance of a competitor.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// ParseTier maps a configuration string to a tier, defaulting to medium.
func ParseTier(s string) PriorityTier {
	switch PriorityTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierHigh:
		return TierHigh
	case TierLow:
		return TierLow
	default:
		return TierMedium
	}
}

// Competitor is one tracked company from the configuration.
type Competitor struct {
	Name     string
	Keywords []string
	Tier     PriorityTier
	// PressURL is an optional press/newsroom page for the web scraper.
	PressURL string
	// FeedURL is an optional RSS/Atom press feed.
	FeedURL string
}

// SearchTerms returns the query terms used by collectors: the competitor
// name followed by its configured keywords.
func (c Competitor) SearchTerms() []string {
	terms := make([]string, 0, len(c.Keywords)+1)
	terms = append(terms, c.Name)
	terms = append(terms, c.Keywords...)
	return terms
}
