package content

import "sort"

// PhasePalette is cycled by phase order for phases without an accent.
var PhasePalette = []string{
	"#2563EB",
	"#D97706",
	"#059669",
	"#DC2626",
	"#7C3AED",
	"#0891B2",
}

// Phase groups a contiguous range of timeline blocks under a heading.
// Indices refer to the raw timeline, the same space as Block.OriginalIndex.
type Phase struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartIndex  int    `json:"startIndex"`
	EndIndex    int    `json:"endIndex"`
	Accent      string `json:"accent"`
}

// NormalizePhases canonicalizes raw phases over a timeline of timelineLen
// raw entries. Phases are ordered by start index; a missing end runs up to
// the next phase's start, or to the end of the timeline.
func NormalizePhases(raw any, timelineLen int) []Phase {
	list, ok := asList(raw)
	if !ok || timelineLen <= 0 {
		return []Phase{}
	}
	last := timelineLen - 1

	type draft struct {
		Phase
		hasEnd bool
	}
	drafts := make([]draft, 0, len(list))
	for _, item := range list {
		r := asRecord(item)
		d := draft{Phase: Phase{
			Title:       resolveString(r, "phase.title"),
			Description: resolveString(r, "phase.description"),
			StartIndex:  clamp(asInt(first(r, "phase.start"), 0), 0, last),
			Accent:      resolveString(r, "phase.accent"),
		}}
		if v, ok := resolve(r, "phase.end"); ok {
			if n, ok := asNumber(v); ok {
				d.EndIndex = int(n)
				d.hasEnd = true
			}
		}
		drafts = append(drafts, d)
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].StartIndex < drafts[j].StartIndex
	})

	phases := make([]Phase, len(drafts))
	for i, d := range drafts {
		p := d.Phase
		if !d.hasEnd {
			p.EndIndex = last
			if i+1 < len(drafts) {
				p.EndIndex = drafts[i+1].StartIndex - 1
			}
		}
		p.EndIndex = clamp(p.EndIndex, p.StartIndex, last)
		if p.Accent == "" {
			p.Accent = PhasePalette[i%len(PhasePalette)]
		}
		phases[i] = p
	}
	return phases
}

// PhaseAt returns the phase covering a raw timeline index, or nil.
func PhaseAt(phases []Phase, index int) *Phase {
	for i := range phases {
		if index >= phases[i].StartIndex && index <= phases[i].EndIndex {
			return &phases[i]
		}
	}
	return nil
}

func first(r Record, field string) any {
	v, _ := resolve(r, field)
	return v
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
