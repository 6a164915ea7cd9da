package content

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

// DefaultHeadlineLimit is the number of headlines shown on a card.
const DefaultHeadlineLimit = 2

const untitledHeadline = "Untitled update"

// Headline is a card-preview line for one recent event.
type Headline struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Index int    `json:"index"`
}

// LatestHeadlines returns the limit most recent events of a raw or normalized
// timeline, newest first. Events without a parseable date sort by their
// position instead of being excluded. key namespaces headline IDs, normally
// the owning item's ID or title.
func LatestHeadlines(key string, timeline any, limit int) []Headline {
	if limit <= 0 {
		limit = DefaultHeadlineLimit
	}

	type keyed struct {
		ev  *EventBlock
		key int64
	}
	var events []keyed
	for _, ev := range Events(NormalizeTimeline(timeline)) {
		k := ev.DateMs()
		if k == 0 {
			k = int64(ev.Index)
		}
		events = append(events, keyed{ev: ev, key: k})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].key > events[j].key
	})
	if len(events) > limit {
		events = events[:limit]
	}

	prefix := slug(key)
	if prefix == "" {
		prefix = "item"
	}
	headlines := make([]Headline, len(events))
	for rank, e := range events {
		title := e.ev.Title
		if title == "" {
			title = untitledHeadline
		}
		headlines[rank] = Headline{
			ID:    fmt.Sprintf("%s-%d-%d", prefix, rank, e.ev.Index),
			Title: title,
			Date:  e.ev.Date,
			Label: timestamp.Label(e.ev.DateMs()),
			Index: e.ev.Index,
		}
	}
	return headlines
}

// slug lowercases s and joins its alphanumeric runs with dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
