package content

import "encoding/json"

// Stakeholder is a party with an interest in a story.
type Stakeholder struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
	// Extra holds unknown per-entry keys such as "role".
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra next to the name and detail.
func (s Stakeholder) MarshalJSON() ([]byte, error) {
	return json.Marshal(withExtra(s.record(), s.Extra))
}

func (s Stakeholder) record() Record {
	r := Record{"name": s.Name}
	if s.Detail != "" {
		r["detail"] = s.Detail
	}
	return r
}

// Analysis is the editorial sidebar of a story or theme.
type Analysis struct {
	Stakeholders []Stakeholder
	FAQs         []QA
	Future       []QA
	// Extra holds fields this package does not know about; they are
	// re-emitted unchanged by MarshalJSON.
	Extra map[string]any
}

var analysisKnownFields = map[string]bool{
	"stakeholders":    true,
	"faqs":            true,
	"future":          true,
	"futureQuestions": true,
}

// NormalizeAnalysis canonicalizes an analysis sub-document. Non-object input
// returns nil, meaning "no analysis", which is distinct from an Analysis with
// empty lists.
func NormalizeAnalysis(raw any) *Analysis {
	r, ok := raw.(map[string]any)
	if !ok {
		if a, isAnalysis := raw.(*Analysis); isAnalysis && a != nil {
			r = a.record()
		} else {
			return nil
		}
	}

	a := &Analysis{
		Stakeholders: []Stakeholder{},
		FAQs:         []QA{},
		Future:       []QA{},
	}

	if list, ok := asList(r["stakeholders"]); ok {
		for _, item := range list {
			sr := asRecord(item)
			a.Stakeholders = append(a.Stakeholders, Stakeholder{
				Name:   resolveString(sr, "stakeholder.name"),
				Detail: resolveString(sr, "stakeholder.detail"),
				Extra:  unknownFields(sr, "stakeholder.name", "stakeholder.detail"),
			})
		}
	}

	faqsRaw, _ := resolve(r, "analysis.faqs")
	if faqs, _ := normalizeQAs(faqsRaw, "analysis.faqs", false); faqs != nil {
		a.FAQs = faqs
	}

	futureRaw, _ := resolve(r, "analysis.future")
	if future, _ := normalizeQAs(futureRaw, "analysis.future", false); future != nil {
		a.Future = future
	}

	for k, v := range r {
		if analysisKnownFields[k] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[k] = v
	}
	return a
}

// IsEmpty reports whether all three lists are empty.
func (a *Analysis) IsEmpty() bool {
	return a == nil || len(a.Stakeholders) == 0 && len(a.FAQs) == 0 && len(a.Future) == 0
}

// MarshalJSON flattens Extra next to the known lists.
func (a Analysis) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+3)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["stakeholders"] = nonNil(a.Stakeholders)
	out["faqs"] = nonNil(a.FAQs)
	out["future"] = nonNil(a.Future)
	return json.Marshal(out)
}

func (a *Analysis) record() Record {
	r := Record{}
	for k, v := range a.Extra {
		r[k] = v
	}
	stakeholders := make([]any, len(a.Stakeholders))
	for i, s := range a.Stakeholders {
		stakeholders[i] = withExtra(s.record(), s.Extra)
	}
	r["stakeholders"] = stakeholders
	r["faqs"] = qaRecords(a.FAQs)
	r["future"] = qaRecords(a.Future)
	return r
}

func qaRecords(qas []QA) []any {
	out := make([]any, len(qas))
	for i, qa := range qas {
		out[i] = withExtra(qa.record(), qa.Extra)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
