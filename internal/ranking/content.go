package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/TobiSchelling/Storyline/internal/content"
)

const (
	RecencyWeight  = 0.4
	VelocityWeight = 0.6

	recencyWindow      = 4 * time.Hour
	recencyStepPenalty = 0.1
	velocityWindow     = 48 * time.Hour
	velocityCap        = 5
)

// Breakdown is a content score with its components.
type Breakdown struct {
	Recency  float64 `json:"recency"`
	Velocity float64 `json:"velocity"`
	Final    float64 `json:"score"`
}

// Scored pairs an item with its score.
type Scored struct {
	Item *content.Item
	Breakdown
}

// ScoreContent returns the feed score of an item at now. Scores are only
// comparable within one ranking pass.
func ScoreContent(it *content.Item, now time.Time) float64 {
	return ScoreContentBreakdown(it, now).Final
}

// ScoreContentBreakdown is ScoreContent with its recency and velocity parts.
func ScoreContentBreakdown(it *content.Item, now time.Time) Breakdown {
	if it == nil {
		return Breakdown{}
	}
	b := Breakdown{
		Recency:  recency(it, now),
		Velocity: velocity(it, now),
	}
	b.Final = RecencyWeight*b.Recency + VelocityWeight*b.Velocity
	return b
}

// Rank scores items and orders them by descending score. Ties keep their
// input order.
func Rank(items []*content.Item, now time.Time) []Scored {
	scored := make([]Scored, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		scored = append(scored, Scored{Item: it, Breakdown: ScoreContentBreakdown(it, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Final > scored[j].Final
	})
	return scored
}

// recency decays by a tenth per started 4-hour window since the item was
// created, reaching zero after 40 hours.
func recency(it *content.Item, now time.Time) float64 {
	ms := it.CreatedAt
	if ms <= 0 {
		ms = it.UpdatedAt
	}
	if ms <= 0 {
		return 0
	}
	elapsed := now.Sub(time.UnixMilli(ms))
	if elapsed < 0 {
		elapsed = 0
	}
	window := math.Floor(float64(elapsed) / float64(recencyWindow))
	return math.Max(1-window*recencyStepPenalty, 0)
}

// velocity counts events touched in the last 48 hours, saturating at five.
func velocity(it *content.Item, now time.Time) float64 {
	cutoff := now.Add(-velocityWindow).UnixMilli()
	count := 0
	for _, ev := range it.Events() {
		if ms := ev.ActivityMs(); ms > 0 && ms >= cutoff {
			count++
		}
	}
	return math.Min(float64(count)/velocityCap, 1)
}
