package process

import (
	"strings"

	"compintel/internal/domain/entity"
)

// fallbackSentences is how many leading sentences the extractive fallback
// keeps when the AI summarizer is unavailable.
const fallbackSentences = 3

// ExtractiveSummary returns the first few sentences of the article body,
// or the title when the body is empty. It is deliberately dumb: the point
// is to always produce something readable when the AI path is down.
func ExtractiveSummary(article *entity.Article) string {
	text := strings.TrimSpace(article.Content)
	if text == "" {
		return strings.TrimSpace(article.Title)
	}

	sentences := splitSentences(text)
	if len(sentences) > fallbackSentences {
		sentences = sentences[:fallbackSentences]
	}
	return strings.Join(sentences, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// categoryKeywords maps lowercase substrings to categories. First match
// in category order wins, so more specific buckets come before broader
// ones.
var categoryKeywords = []struct {
	category entity.Category
	keywords []string
}{
	{entity.CategoryFunding, []string{
		"funding", "investment", "raises", "raised", "series a", "series b",
		"series c", "ipo", "valuation", "acquisition", "acquires", "acquired",
	}},
	{entity.CategoryExecutiveMoves, []string{
		"ceo", "cfo", "cto", "executive", "appoints", "appointed", "hires",
		"resigns", "steps down", "joins as", "named president",
	}},
	{entity.CategoryRegulatoryNews, []string{
		"regulator", "regulation", "compliance", "lawsuit", "antitrust",
		"settlement", "fined", "investigation", "legal action",
	}},
	{entity.CategoryPartnerships, []string{
		"partnership", "partners with", "collaboration", "alliance",
		"joint venture", "teams up",
	}},
	{entity.CategoryPromotions, []string{
		"discount", "promotion", "limited time", "special offer", "deal",
		"sale", "coupon", "% off",
	}},
	{entity.CategoryMarketingCampaigns, []string{
		"campaign", "advertising", "advertisement", "brand", "marketing",
		"sponsorship", "sponsors",
	}},
	{entity.CategoryProductUpdates, []string{
		"launch", "launches", "launched", "release", "released", "new feature",
		"update", "version", "unveils", "introduces", "rollout",
	}},
}

// CategorizeByKeyword assigns a category from title and body keywords.
// Used when the AI summarizer did not return one. Unmatched articles land
// in Other.
func CategorizeByKeyword(article *entity.Article) entity.Category {
	text := strings.ToLower(article.Title + " " + article.Content)
	for _, bucket := range categoryKeywords {
		for _, kw := range bucket.keywords {
			if strings.Contains(text, kw) {
				return bucket.category
			}
		}
	}
	return entity.CategoryOther
}

// FallbackSummary builds the complete degraded-mode summary for one
// article.
func FallbackSummary(article *entity.Article) *entity.Summary {
	return &entity.Summary{
		ArticleID: article.ID,
		Text:      ExtractiveSummary(article),
		Category:  CategorizeByKeyword(article),
		Fallback:  true,
	}
}
