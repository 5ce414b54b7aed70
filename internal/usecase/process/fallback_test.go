package process

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"compintel/internal/domain/entity"
)

func TestExtractiveSummary(t *testing.T) {
	tests := []struct {
		name    string
		article entity.Article
		want    string
	}{
		{
			name:    "truncates to three sentences",
			article: entity.Article{Content: "One. Two! Three? Four. Five."},
			want:    "One. Two! Three?",
		},
		{
			name:    "shorter body kept whole",
			article: entity.Article{Content: "Only sentence."},
			want:    "Only sentence.",
		},
		{
			name:    "trailing fragment without terminator",
			article: entity.Article{Content: "First. Second fragment without period"},
			want:    "First. Second fragment without period",
		},
		{
			name:    "empty body falls back to title",
			article: entity.Article{Title: "Acme raises Series B", Content: "   "},
			want:    "Acme raises Series B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractiveSummary(&tt.article))
		})
	}
}

func TestCategorizeByKeyword(t *testing.T) {
	tests := []struct {
		name  string
		title string
		body  string
		want  entity.Category
	}{
		{"product launch", "Acme launches new widget", "", entity.CategoryProductUpdates},
		{"funding round", "Acme raises $50M", "The Series B round values the company at $1B.", entity.CategoryFunding},
		{"executive hire", "Acme appoints new CTO", "", entity.CategoryExecutiveMoves},
		{"regulatory", "Acme faces antitrust investigation", "", entity.CategoryRegulatoryNews},
		{"partnership", "Acme teams up with Globex", "", entity.CategoryPartnerships},
		{"promotion", "Acme runs 20% off summer sale", "", entity.CategoryPromotions},
		{"marketing", "Acme debuts Super Bowl advertising push", "", entity.CategoryMarketingCampaigns},
		{"no match", "Quarterly weather outlook", "Cloudy with rain.", entity.CategoryOther},
		{"funding beats product when both match", "Acme launches fund after raising Series C", "", entity.CategoryFunding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &entity.Article{Title: tt.title, Content: tt.body}
			assert.Equal(t, tt.want, CategorizeByKeyword(a))
		})
	}
}

func TestFallbackSummary(t *testing.T) {
	a := &entity.Article{
		ID:      7,
		Title:   "Acme launches widget",
		Content: "A. B. C. D.",
	}
	s := FallbackSummary(a)
	assert.Equal(t, int64(7), s.ArticleID)
	assert.True(t, s.Fallback)
	assert.Equal(t, "A. B. C.", s.Text)
	assert.Equal(t, entity.CategoryProductUpdates, s.Category)
}
