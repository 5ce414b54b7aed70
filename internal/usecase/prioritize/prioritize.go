// Package prioritize scores summarized articles so reports surface the
// most important intelligence first. The score is a weighted blend of
// four factors, each on a 0-10 scale: how fresh the article is, how
// authoritative its source is, how important its category is, and how
// closely the competitor is tracked.
package prioritize

import (
	"fmt"
	"math"
	"sort"
	"time"

	"compintel/internal/domain/entity"
	"compintel/internal/resilience/faults"
)

// weightEpsilon is the tolerance when checking that weights sum to 1.0.
const weightEpsilon = 1e-6

// Weights holds the four factor weights. They must sum to 1.0.
type Weights struct {
	Recency            float64 `yaml:"recency"`
	SourceAuthority    float64 `yaml:"source_authority"`
	CategoryImportance float64 `yaml:"category_importance"`
	CompetitorPriority float64 `yaml:"competitor_priority"`
}

// DefaultWeights favors recency slightly over the other factors.
func DefaultWeights() Weights {
	return Weights{
		Recency:            0.3,
		SourceAuthority:    0.25,
		CategoryImportance: 0.25,
		CompetitorPriority: 0.2,
	}
}

// Validate rejects weight sets that do not sum to 1.0. A config error
// here means every score this process would produce is wrong, so it
// classifies as a critical fault and aborts the run.
func (w Weights) Validate() error {
	sum := w.Recency + w.SourceAuthority + w.CategoryImportance + w.CompetitorPriority
	if math.Abs(sum-1.0) > weightEpsilon {
		return faults.Critical("prioritizer",
			&WeightSumError{Sum: sum})
	}
	for _, v := range []float64{w.Recency, w.SourceAuthority, w.CategoryImportance, w.CompetitorPriority} {
		if v < 0 {
			return faults.Critical("prioritizer", &WeightSumError{Sum: sum, Negative: true})
		}
	}
	return nil
}

// WeightSumError reports an invalid weight configuration.
type WeightSumError struct {
	Sum      float64
	Negative bool
}

func (e *WeightSumError) Error() string {
	if e.Negative {
		return "priority weights must be non-negative"
	}
	return fmt.Sprintf("priority weights must sum to 1.0, got %v", e.Sum)
}

// DefaultCategoryScores reflects how actionable each kind of news tends
// to be for competitive response.
func DefaultCategoryScores() map[entity.Category]float64 {
	return map[entity.Category]float64{
		entity.CategoryProductUpdates:     9,
		entity.CategoryFunding:            8,
		entity.CategoryRegulatoryNews:     8,
		entity.CategoryPartnerships:       7,
		entity.CategoryExecutiveMoves:     6,
		entity.CategoryMarketingCampaigns: 5,
		entity.CategoryPromotions:         4,
		entity.CategoryOther:              3,
	}
}

// TierScore maps a competitor's tracking tier to its 0-10 factor score.
func TierScore(tier entity.PriorityTier) float64 {
	switch tier {
	case entity.TierHigh:
		return 10
	case entity.TierMedium:
		return 7
	default:
		return 5
	}
}

// defaultSourceAuthority is used for sources absent from the authority
// table, so an unknown source neither dominates nor disappears.
const defaultSourceAuthority = 5.0

// Config assembles everything the Prioritizer needs besides the items.
type Config struct {
	Weights         Weights
	SourceAuthority map[string]float64
	CategoryScores  map[entity.Category]float64
	CompetitorTiers map[string]entity.PriorityTier
	Lookback        time.Duration
}

// Prioritizer computes priority scores deterministically: the same
// inputs and clock always produce the same scores and order.
type Prioritizer struct {
	cfg Config
	now func() time.Time
}

// New validates the weights and builds a Prioritizer. The now function
// is the clock used for recency; pass nil for time.Now.
func New(cfg Config, now func() time.Time) (*Prioritizer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.CategoryScores == nil {
		cfg.CategoryScores = DefaultCategoryScores()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Prioritizer{cfg: cfg, now: now}, nil
}

// Item pairs a summary with its article for scoring.
type Item struct {
	Summary *entity.Summary
	Article *entity.Article
}

// Score computes the weighted priority for one item. The value is kept
// at full precision; rendering layers round for display.
func (p *Prioritizer) Score(item Item) float64 {
	w := p.cfg.Weights
	return w.Recency*p.recencyScore(item.Article.PublishedAt) +
		w.SourceAuthority*p.authorityScore(item.Article.Source) +
		w.CategoryImportance*p.categoryScore(item.Summary.Category) +
		w.CompetitorPriority*p.competitorScore(item.Article.Competitor)
}

// Rank scores every item and sorts descending. Ties break toward the
// more recently published article; beyond that the input order is kept,
// so ranking is stable and repeatable.
func (p *Prioritizer) Rank(items []Item) []Item {
	for _, item := range items {
		item.Summary.PriorityScore = p.Score(item)
	}
	ranked := make([]Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Summary.PriorityScore, ranked[j].Summary.PriorityScore
		if si != sj {
			return si > sj
		}
		return ranked[i].Article.PublishedAt.After(ranked[j].Article.PublishedAt)
	})
	return ranked
}

// recencyScore decays linearly from 10 (just published) to 0 at the
// lookback horizon. Articles older than the horizon floor at 0 and
// future-dated articles cap at 10.
func (p *Prioritizer) recencyScore(publishedAt time.Time) float64 {
	age := p.now().Sub(publishedAt)
	score := 10 * (1 - float64(age)/float64(p.cfg.Lookback))
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func (p *Prioritizer) authorityScore(source string) float64 {
	if score, ok := p.cfg.SourceAuthority[source]; ok {
		return score
	}
	return defaultSourceAuthority
}

func (p *Prioritizer) categoryScore(category entity.Category) float64 {
	if score, ok := p.cfg.CategoryScores[category]; ok {
		return score
	}
	return p.cfg.CategoryScores[entity.CategoryOther]
}

func (p *Prioritizer) competitorScore(competitor string) float64 {
	tier, ok := p.cfg.CompetitorTiers[competitor]
	if !ok {
		return TierScore(entity.TierLow)
	}
	return TierScore(tier)
}
