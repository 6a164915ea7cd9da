package content

import (
	"strconv"
	"strings"

	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

// ItemKind is the collection a content item belongs to.
type ItemKind string

const (
	Story ItemKind = "story"
	Theme ItemKind = "theme"
)

// Kinds lists every item kind in display order.
var Kinds = []ItemKind{Story, Theme}

// ParseKind accepts singular and plural collection names.
func ParseKind(s string) (ItemKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "story", "stories":
		return Story, true
	case "theme", "themes":
		return Theme, true
	}
	return "", false
}

// Item is a normalized story or theme.
type Item struct {
	ID              string    `json:"id"`
	Kind            ItemKind  `json:"kind"`
	Title           string    `json:"title"`
	Overview        string    `json:"overview,omitempty"`
	Category        string    `json:"category,omitempty"`
	AllCategories   []string  `json:"allCategories,omitempty"`
	PrimaryCategory string    `json:"primaryCategory,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	Subcategory     string    `json:"subcategory,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	CreatedAt       int64     `json:"createdAt,omitempty"`
	UpdatedAt       int64     `json:"updatedAt,omitempty"`
	PublishedAt     int64     `json:"publishedAt,omitempty"`
	Timeline        []Block   `json:"timeline"`
	Analysis        *Analysis `json:"analysis,omitempty"`
	Phases          []Phase   `json:"phases,omitempty"`

	// Dropped lists what normalization discarded from the raw record.
	Dropped Diagnostics `json:"-"`
}

// NormalizeItem canonicalizes a stored story or theme document. A missing
// id is allowed here; ranking and suggestions skip items without one.
func NormalizeItem(kind ItemKind, raw any) *Item {
	r := asRecord(raw)

	timelineRaw, _ := resolve(r, "item.timeline")
	timeline, dropped := NormalizeTimelineDiagnostics(timelineRaw)
	rawLen := len(timeline)
	if list, ok := asList(timelineRaw); ok {
		rawLen = len(list)
	}
	analysisRaw, _ := resolve(r, "item.analysis")
	phasesRaw, _ := resolve(r, "item.phases")

	return &Item{
		ID:              idString(first(r, "item.id")),
		Kind:            kind,
		Title:           resolveString(r, "item.title"),
		Overview:        resolveString(r, "item.overview"),
		Category:        asString(r["category"]),
		AllCategories:   asStrings(r["allCategories"]),
		PrimaryCategory: asString(r["primaryCategory"]),
		Categories:      asStrings(r["categories"]),
		Subcategory:     asString(r["subcategory"]),
		Tags:            asStrings(r["tags"]),
		ImageURL:        resolveString(r, "item.image"),
		CreatedAt:       timestamp.CoerceMs(first(r, "item.createdAt")),
		UpdatedAt:       timestamp.CoerceMs(first(r, "item.updatedAt")),
		PublishedAt:     timestamp.CoerceMs(first(r, "item.publishedAt")),
		Timeline:        timeline,
		Analysis:        NormalizeAnalysis(analysisRaw),
		Phases:          NormalizePhases(phasesRaw, rawLen),
		Dropped:         dropped,
	}
}

// NormalizeItems normalizes a batch of raw documents of one kind.
func NormalizeItems(kind ItemKind, raws []Record) []*Item {
	items := make([]*Item, 0, len(raws))
	for _, r := range raws {
		items = append(items, NormalizeItem(kind, r))
	}
	return items
}

// Events returns the item's event blocks in timeline order.
func (it *Item) Events() []*EventBlock {
	return Events(it.Timeline)
}

// Headlines returns the item's latest headlines, keyed by its ID or title.
func (it *Item) Headlines(limit int) []Headline {
	key := it.ID
	if key == "" {
		key = it.Title
	}
	return LatestHeadlines(key, it.Timeline, limit)
}

func idString(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	if n, ok := asNumber(v); ok && n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return ""
}
