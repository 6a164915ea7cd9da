package content

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

// BlockKind discriminates timeline blocks.
type BlockKind string

const (
	KindEvent BlockKind = "event"
	KindImage BlockKind = "image"
)

// DefaultAspectRatio is used for image blocks without a usable ratio.
const DefaultAspectRatio = 16.0 / 9.0

// Fact-check statuses an event may carry.
const (
	FactConsensus        = "consensus"
	FactDebated          = "debated"
	FactPartiallyDebated = "partially_debated"
)

var factStatuses = map[string]bool{
	FactConsensus:        true,
	FactDebated:          true,
	FactPartiallyDebated: true,
}

// Block is one element of a normalized timeline: *EventBlock or *ImageBlock.
type Block interface {
	Kind() BlockKind
	// OriginalIndex is the block's position in the raw timeline, used by
	// phases to address blocks.
	OriginalIndex() int
	record() Record
}

// Media points an event at an image, optionally one of its sources'.
type Media struct {
	Type        string `json:"type"`
	ImageURL    string `json:"imageUrl,omitempty"`
	SourceIndex int    `json:"sourceIndex"`
}

// QA is a question with its answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	// Extra holds unknown per-entry keys, re-emitted by MarshalJSON.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra next to the question and answer.
func (qa QA) MarshalJSON() ([]byte, error) {
	return json.Marshal(withExtra(qa.record(), qa.Extra))
}

func (qa QA) record() Record {
	r := Record{"question": qa.Question}
	if qa.Answer != "" {
		r["answer"] = qa.Answer
	}
	return r
}

// FactCheck is an editorial confidence label on an event.
type FactCheck struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ContextTerm explains a term used in an event.
type ContextTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition,omitempty"`
}

// EventBlock is a dated development in a story.
type EventBlock struct {
	Type         BlockKind     `json:"type"`
	Index        int           `json:"index"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Date         string        `json:"date"`
	Significance int           `json:"significance"`
	Sources      []Source      `json:"sources"`
	Media        *Media        `json:"media,omitempty"`
	FAQs         []QA          `json:"faqs,omitempty"`
	FactCheck    *FactCheck    `json:"factCheck,omitempty"`
	ContextTerms []ContextTerm `json:"contextTerms,omitempty"`
	CreatedAt    int64         `json:"createdAt,omitempty"`
	UpdatedAt    int64         `json:"updatedAt,omitempty"`
}

// ImageBlock is a standalone picture between events.
type ImageBlock struct {
	Type        BlockKind `json:"type"`
	Index       int       `json:"index"`
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Caption     string    `json:"caption,omitempty"`
	AspectRatio float64   `json:"aspectRatio"`
}

func (e *EventBlock) Kind() BlockKind    { return KindEvent }
func (e *EventBlock) OriginalIndex() int { return e.Index }
func (b *ImageBlock) Kind() BlockKind    { return KindImage }
func (b *ImageBlock) OriginalIndex() int { return b.Index }

// DateMs returns the event date in epoch ms, 0 when absent.
func (e *EventBlock) DateMs() int64 {
	return timestamp.CoerceMs(e.Date)
}

// ActivityMs is the event's last-touched time: updatedAt, else createdAt.
func (e *EventBlock) ActivityMs() int64 {
	if e.UpdatedAt > 0 {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// NormalizeTimeline converts a raw timeline into canonical blocks, keeping
// input order. Image blocks without a URL and sources without a link are
// dropped silently.
func NormalizeTimeline(raw any) []Block {
	blocks, _ := NormalizeTimelineDiagnostics(raw)
	return blocks
}

// NormalizeTimelineDiagnostics is NormalizeTimeline plus the list of
// elements it dropped.
func NormalizeTimelineDiagnostics(raw any) ([]Block, Diagnostics) {
	list, indices, ok := timelineList(raw)
	if !ok {
		return []Block{}, nil
	}

	blocks := make([]Block, 0, len(list))
	var diags Diagnostics
	for pos, item := range list {
		i := indices[pos]
		r := asRecord(item)
		path := fmt.Sprintf("timeline[%d]", i)
		if asString(r["type"]) == string(KindImage) {
			img, ok := normalizeImage(r, i)
			if !ok {
				diags = append(diags, Drop{Path: path, Reason: ReasonMissingImageURL})
				continue
			}
			blocks = append(blocks, img)
			continue
		}
		ev, evDiags := normalizeEvent(r, i, path)
		diags = append(diags, evDiags...)
		blocks = append(blocks, ev)
	}
	return blocks, diags
}

// Events returns only the event blocks of a timeline.
func Events(blocks []Block) []*EventBlock {
	var out []*EventBlock
	for _, b := range blocks {
		if ev, ok := b.(*EventBlock); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Reversed returns blocks newest-first without touching indices.
func Reversed(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

// FilterSignificance keeps events with at least the given significance, plus
// all image blocks. Used for the abbreviated "Essential" view.
func FilterSignificance(blocks []Block, significance int) []Block {
	var out []Block
	for _, b := range blocks {
		if ev, ok := b.(*EventBlock); ok && ev.Significance < significance {
			continue
		}
		out = append(out, b)
	}
	return out
}

// CoerceSignificance returns v as 1, 2 or 3; anything else is 1.
func CoerceSignificance(v any) int {
	switch n := asInt(v, 1); n {
	case 1, 2, 3:
		return n
	}
	return 1
}

// timelineList returns the raw entries with their original indices. Already
// normalized blocks keep the indices they were assigned the first time.
func timelineList(raw any) ([]any, []int, bool) {
	if blocks, ok := raw.([]Block); ok {
		list := make([]any, len(blocks))
		indices := make([]int, len(blocks))
		for i, b := range blocks {
			list[i] = b.record()
			indices[i] = b.OriginalIndex()
		}
		return list, indices, true
	}
	list, ok := asList(raw)
	if !ok {
		return nil, nil, false
	}
	indices := make([]int, len(list))
	for i := range list {
		indices[i] = i
	}
	return list, indices, true
}

func normalizeImage(r Record, index int) (*ImageBlock, bool) {
	url := resolveString(r, "image.url")
	if url == "" {
		return nil, false
	}

	id := asString(r["id"])
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
	}

	ratio := DefaultAspectRatio
	if v, ok := resolve(r, "image.aspectRatio"); ok {
		if n, ok := asNumber(v); ok && n > 0 && !math.IsInf(n, 0) {
			ratio = n
		}
	}

	return &ImageBlock{
		Type:        KindImage,
		Index:       index,
		ID:          id,
		URL:         url,
		Caption:     resolveString(r, "image.caption"),
		AspectRatio: ratio,
	}, true
}

func normalizeEvent(r Record, index int, path string) (*EventBlock, Diagnostics) {
	var diags Diagnostics

	var date string
	if v, ok := resolve(r, "event.date"); ok {
		date = timestamp.FormatISO(timestamp.CoerceMs(v))
	}

	sources, sourceDiags := normalizeSources(r["sources"], path+".sources")
	diags = append(diags, sourceDiags...)

	faqsRaw, _ := resolve(r, "event.faqs")
	faqs, faqDiags := normalizeQAs(faqsRaw, path+".faqs", true)
	diags = append(diags, faqDiags...)

	factCheck, ok := normalizeFactCheck(r)
	if !ok {
		diags = append(diags, Drop{Path: path + ".factCheck", Reason: ReasonInvalidFactCheck})
	}

	createdAt, _ := resolve(r, "event.createdAt")
	updatedAt, _ := resolve(r, "event.updatedAt")

	return &EventBlock{
		Type:         KindEvent,
		Index:        index,
		Title:        resolveString(r, "event.title"),
		Description:  resolveString(r, "event.description"),
		Date:         date,
		Significance: CoerceSignificance(r["significance"]),
		Sources:      sources,
		Media:        normalizeMedia(r),
		FAQs:         faqs,
		FactCheck:    factCheck,
		ContextTerms: normalizeTerms(r),
		CreatedAt:    timestamp.CoerceMs(createdAt),
		UpdatedAt:    timestamp.CoerceMs(updatedAt),
	}, diags
}

func normalizeMedia(r Record) *Media {
	if v, ok := resolve(r, "event.media"); ok && isRecord(v) {
		m := asRecord(v)
		idx := asInt(m["sourceIndex"], 0)
		if idx < 0 {
			idx = 0
		}
		return &Media{
			Type:        resolveString(m, "media.type"),
			ImageURL:    resolveString(m, "media.imageUrl"),
			SourceIndex: idx,
		}
	}
	if mode := resolveString(r, "event.mediaType"); mode != "" {
		return &Media{Type: mode}
	}
	return nil
}

// normalizeFactCheck returns nil when no fact-check is present. The second
// result is false when one was present but its status was not recognized.
func normalizeFactCheck(r Record) (*FactCheck, bool) {
	var status, note string
	var updated any
	if v, ok := resolve(r, "event.factCheck"); ok && isRecord(v) {
		fc := asRecord(v)
		status = resolveString(fc, "factCheck.status")
		note = resolveString(fc, "factCheck.note")
		updated, _ = resolve(fc, "factCheck.updatedAt")
	} else {
		status = resolveString(r, "event.factStatus")
		note = resolveString(r, "event.factNote")
	}

	if status == "" {
		return nil, true
	}
	status = strings.ToLower(status)
	if !factStatuses[status] {
		return nil, false
	}
	return &FactCheck{
		Status:    status,
		Note:      note,
		UpdatedAt: timestamp.FormatISO(timestamp.CoerceMs(updated)),
	}, true
}

func normalizeTerms(r Record) []ContextTerm {
	v, ok := resolve(r, "event.terms")
	if !ok {
		return nil
	}
	list, ok := asList(v)
	if !ok {
		return nil
	}
	var terms []ContextTerm
	for _, item := range list {
		if s := asString(item); s != "" {
			terms = append(terms, ContextTerm{Term: s})
			continue
		}
		tr := asRecord(item)
		term := resolveString(tr, "term.term")
		if term == "" {
			continue
		}
		terms = append(terms, ContextTerm{Term: term, Definition: resolveString(tr, "term.definition")})
	}
	return terms
}

// normalizeQAs reads a list of {question, answer}. When strict, entries
// without a question are dropped.
func normalizeQAs(raw any, path string, strict bool) ([]QA, Diagnostics) {
	list, ok := asList(raw)
	if !ok {
		return nil, nil
	}
	var out []QA
	var diags Diagnostics
	for i, item := range list {
		r := asRecord(item)
		qa := QA{
			Question: resolveString(r, "qa.question"),
			Answer:   resolveString(r, "qa.answer"),
			Extra:    unknownFields(r, "qa.question", "qa.answer"),
		}
		if strict && qa.Question == "" {
			diags = append(diags, Drop{Path: path + "[" + strconv.Itoa(i) + "]", Reason: ReasonMissingQuestion})
			continue
		}
		out = append(out, qa)
	}
	return out, diags
}

func (e *EventBlock) record() Record {
	sources := make([]any, len(e.Sources))
	for i, s := range e.Sources {
		sources[i] = s.record()
	}
	r := Record{
		"type":         string(KindEvent),
		"title":        e.Title,
		"description":  e.Description,
		"date":         e.Date,
		"significance": float64(e.Significance),
		"sources":      sources,
	}
	if e.Media != nil {
		r["media"] = Record{
			"type":        e.Media.Type,
			"imageUrl":    e.Media.ImageURL,
			"sourceIndex": float64(e.Media.SourceIndex),
		}
	}
	if len(e.FAQs) > 0 {
		r["faqs"] = qaRecords(e.FAQs)
	}
	if e.FactCheck != nil {
		r["factCheck"] = Record{
			"status":    e.FactCheck.Status,
			"note":      e.FactCheck.Note,
			"updatedAt": e.FactCheck.UpdatedAt,
		}
	}
	if len(e.ContextTerms) > 0 {
		terms := make([]any, len(e.ContextTerms))
		for i, t := range e.ContextTerms {
			terms[i] = Record{"term": t.Term, "definition": t.Definition}
		}
		r["contextTerms"] = terms
	}
	if e.CreatedAt > 0 {
		r["createdAt"] = float64(e.CreatedAt)
	}
	if e.UpdatedAt > 0 {
		r["updatedAt"] = float64(e.UpdatedAt)
	}
	return r
}

func (b *ImageBlock) record() Record {
	r := Record{
		"type":        string(KindImage),
		"id":          b.ID,
		"url":         b.URL,
		"aspectRatio": b.AspectRatio,
	}
	if b.Caption != "" {
		r["caption"] = b.Caption
	}
	return r
}
