package ranking

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/Storyline/internal/content"
)

// DefaultSuggestionLimit is the length of a "continue reading" rail.
const DefaultSuggestionLimit = 5

const (
	sharedTagWeight     = 3
	categoryMatchWeight = 4
	freshnessWeight     = 3
	freshnessHorizon    = 120 * 24 * time.Hour
)

// Suggestion is a candidate item scored against a base item.
type Suggestion struct {
	Item  *content.Item `json:"item"`
	Score float64       `json:"score"`
}

// ScoreSimilarity scores how well candidate follows base. The freshness
// bonus depends on the candidate only, so the score is not symmetric.
func ScoreSimilarity(base, candidate *content.Item, now time.Time) float64 {
	if base == nil || candidate == nil {
		return 0
	}

	baseTags := TagSet(base)
	shared := 0
	for tag := range TagSet(candidate) {
		if baseTags[tag] {
			shared++
		}
	}

	match := 0.0
	bp, cp := PrimaryCategory(base), PrimaryCategory(candidate)
	if bp != "" && strings.EqualFold(bp, cp) {
		match = 1
	}

	return sharedTagWeight*float64(shared) +
		categoryMatchWeight*match +
		freshnessWeight*freshness(candidate, now)
}

// TagSet is the lower-cased union of an item's tags, categories and
// subcategory.
func TagSet(it *content.Item) map[string]bool {
	set := make(map[string]bool)
	add := func(s string) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = true
		}
	}
	for _, t := range it.Tags {
		add(t)
	}
	for _, c := range it.AllCategories {
		add(c)
	}
	add(it.Category)
	add(it.Subcategory)
	return set
}

// PrimaryCategory returns the first of category, allCategories[0],
// primaryCategory and categories[0] that is set.
func PrimaryCategory(it *content.Item) string {
	if it.Category != "" {
		return it.Category
	}
	if len(it.AllCategories) > 0 {
		return it.AllCategories[0]
	}
	if it.PrimaryCategory != "" {
		return it.PrimaryCategory
	}
	if len(it.Categories) > 0 {
		return it.Categories[0]
	}
	return ""
}

// Suggest returns up to limit items from pool ordered by similarity to base.
// Candidates without an ID and the base itself are skipped. limit <= 0 means
// DefaultSuggestionLimit.
func Suggest(base *content.Item, pool []*content.Item, limit int, now time.Time) []Suggestion {
	if base == nil {
		return []Suggestion{}
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	out := make([]Suggestion, 0, len(pool))
	for _, c := range pool {
		if c == nil || c.ID == "" || c.ID == base.ID || c == base {
			continue
		}
		out = append(out, Suggestion{Item: c, Score: ScoreSimilarity(base, c, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// freshness falls linearly from 1 at now to 0 at 120 days old.
func freshness(it *content.Item, now time.Time) float64 {
	ms := it.CreatedAt
	if ms <= 0 {
		ms = it.UpdatedAt
	}
	if ms <= 0 {
		return 0
	}
	age := now.Sub(time.UnixMilli(ms))
	if age < 0 {
		age = 0
	}
	return math.Max(1-float64(age)/float64(freshnessHorizon), 0)
}
