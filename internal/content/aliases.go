package content

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a loosely-typed document as decoded from storage.
type Record = map[string]any

// fieldAliases lists, per canonical field, the raw keys consulted in priority
// order. New legacy spellings are added here, not in the normalizers.
var fieldAliases = map[string][]string{
	"event.title":       {"title", "event"},
	"event.description": {"description", "summary"},
	"event.date":        {"date", "timestamp", "startedAt"},
	"event.media":       {"media"},
	"event.mediaType":   {"displayMode"},
	"event.factCheck":   {"factCheck"},
	"event.factStatus":  {"factCheckStatus"},
	"event.factNote":    {"factCheckNote"},
	"event.faqs":        {"faqs", "faq"},
	"event.terms":       {"contextTerms", "context"},
	"event.createdAt":   {"createdAt"},
	"event.updatedAt":   {"updatedAt"},

	"media.type":        {"type"},
	"media.imageUrl":    {"imageUrl", "url"},
	"media.sourceIndex": {"sourceIndex"},

	"factCheck.status":    {"status"},
	"factCheck.note":      {"note"},
	"factCheck.updatedAt": {"updatedAt", "updated"},

	"image.url":         {"url", "imageUrl"},
	"image.caption":     {"caption"},
	"image.aspectRatio": {"aspectRatio"},

	"source.title":       {"title"},
	"source.link":        {"link"},
	"source.name":        {"sourceName", "siteName"},
	"source.image":       {"imageUrl", "image"},
	"source.publishedAt": {"publishedAt", "date"},
	"source.provider":    {"provider"},

	"analysis.stakeholders": {"stakeholders"},
	"analysis.faqs":         {"faqs"},
	"analysis.future":       {"future", "futureQuestions"},

	"qa.question":        {"question"},
	"qa.answer":          {"answer"},
	"stakeholder.name":   {"name"},
	"stakeholder.detail": {"detail", "description"},
	"term.term":          {"term", "name"},
	"term.definition":    {"definition", "detail"},

	"phase.title":       {"title", "name"},
	"phase.description": {"description"},
	"phase.start":       {"startIndex", "start"},
	"phase.end":         {"endIndex", "end"},
	"phase.accent":      {"accent", "accentColor", "color"},

	"item.id":          {"id", "_id"},
	"item.title":       {"title"},
	"item.overview":    {"overview", "description"},
	"item.image":       {"imageUrl", "image", "coverImage"},
	"item.createdAt":   {"createdAt"},
	"item.updatedAt":   {"updatedAt"},
	"item.publishedAt": {"publishedAt"},
	"item.timeline":    {"timeline"},
	"item.analysis":    {"analysis"},
	"item.phases":      {"phases"},
}

// resolve returns the first present, non-empty value among the aliases of
// field. An empty string, empty list or empty object counts as absent.
func resolve(r Record, field string) (any, bool) {
	for _, key := range fieldAliases[field] {
		v, ok := r[key]
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// unknownFields returns the entries of r whose keys are not an alias of any
// of the given fields, or nil when there are none.
func unknownFields(r Record, fields ...string) map[string]any {
	known := make(map[string]bool)
	for _, f := range fields {
		for _, key := range fieldAliases[f] {
			known[key] = true
		}
	}
	var out map[string]any
	for k, v := range r {
		if known[k] {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

// withExtra merges extra into a copy of known. Known keys win.
func withExtra(known Record, extra map[string]any) Record {
	out := make(Record, len(known)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return out
}

func resolveString(r Record, field string) string {
	v, _ := resolve(r, field)
	return asString(v)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// asRecord returns v as a Record, or an empty one for non-objects.
func asRecord(v any) Record {
	if r, ok := v.(map[string]any); ok {
		return r
	}
	return Record{}
}

func isRecord(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// asString returns strings as-is (trimmed) and "" for everything else.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// asStrings flattens arrays and wraps scalars.
func asStrings(v any) []string {
	if s := asString(v); s != "" {
		return []string{s}
	}
	list, ok := asList(v)
	if !ok {
		if ss, ok := v.([]string); ok {
			list = make([]any, len(ss))
			for i, s := range ss {
				list[i] = s
			}
		}
	}
	var out []string
	for _, item := range list {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any, fallback int) int {
	n, ok := asNumber(v)
	if !ok || n != float64(int(n)) {
		return fallback
	}
	return int(n)
}
