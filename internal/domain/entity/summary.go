package entity

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Category classifies an article summary into one of a fixed set of
// competitive-intelligence buckets.
type Category string

const (
	CategoryProductUpdates     Category = "Product Updates"
	CategoryMarketingCampaigns Category = "Marketing Campaigns"
	CategoryPartnerships       Category = "Partnerships"
	CategoryRegulatoryNews     Category = "Regulatory News"
	CategoryPromotions         Category = "Promotions"
	CategoryExecutiveMoves     Category = "Executive Moves"
	CategoryFunding            Category = "Funding"
	CategoryOther              Category = "Other"
)

// Categories lists every valid category.
func Categories() []Category {
	return []Category{
		CategoryProductUpdates,
		CategoryMarketingCampaigns,
		CategoryPartnerships,
		CategoryRegulatoryNews,
		CategoryPromotions,
		CategoryExecutiveMoves,
		CategoryFunding,
		CategoryOther,
	}
}

// Valid reports whether the category is one of the fixed set.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory returns the matching category for the given string,
// ignoring case and surrounding whitespace. Unknown values map to
// CategoryOther.
func ParseCategory(s string) Category {
	c := Category(NormalizeTitleCase(s))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

// NormalizeTitleCase trims the input and title-cases each word so that
// AI-returned category labels like "regulatory news" match the enum.
// Words are handled rune-wise so multi-byte leading characters survive.
func NormalizeTitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		first, size := utf8.DecodeRuneInString(lower)
		words[i] = string(unicode.ToUpper(first)) + lower[size:]
	}
	return strings.Join(words, " ")
}

// Summary holds the generated (or fallback) summary for exactly one
// article. It is mutable only during the processing stage of the run that
// created the parent article; afterwards it is stored and never changed.
type Summary struct {
	ID            int64
	ArticleID     int64
	Text          string
	Category      Category
	PriorityScore float64
	Fallback      bool
	CreatedAt     time.Time
}
