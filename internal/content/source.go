package content

import (
	"fmt"

	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

// DefaultProvider tags sources entered by hand in the CMS.
const DefaultProvider = "manual"

// Source is a reference to the article backing a timeline event.
type Source struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	SourceName  string `json:"sourceName"`
	ImageURL    string `json:"imageUrl,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Provider    string `json:"provider"`
}

// NormalizeSource canonicalizes one source. Non-objects are treated as empty;
// the result may have an empty Link, which NormalizeSources filters out.
func NormalizeSource(raw any) Source {
	r := asRecord(raw)
	provider := resolveString(r, "source.provider")
	if provider == "" {
		provider = DefaultProvider
	}

	var published string
	if v, ok := resolve(r, "source.publishedAt"); ok {
		published = timestamp.FormatISO(timestamp.CoerceMs(v))
	}

	return Source{
		Title:       resolveString(r, "source.title"),
		Link:        resolveString(r, "source.link"),
		SourceName:  resolveString(r, "source.name"),
		ImageURL:    resolveString(r, "source.image"),
		PublishedAt: published,
		Provider:    provider,
	}
}

// NormalizeSources maps raw through NormalizeSource and drops sources without
// a link. Non-array input yields an empty list.
func NormalizeSources(raw any) []Source {
	sources, _ := normalizeSources(raw, "sources")
	return sources
}

func normalizeSources(raw any, path string) ([]Source, Diagnostics) {
	list, ok := asList(raw)
	if !ok {
		return []Source{}, nil
	}
	out := make([]Source, 0, len(list))
	var diags Diagnostics
	for i, item := range list {
		s := NormalizeSource(item)
		if s.Link == "" {
			diags = append(diags, Drop{Path: fmt.Sprintf("%s[%d]", path, i), Reason: ReasonMissingLink})
			continue
		}
		out = append(out, s)
	}
	return out, diags
}

// record renders s back into its stored shape.
func (s Source) record() Record {
	r := Record{
		"title":      s.Title,
		"link":       s.Link,
		"sourceName": s.SourceName,
		"provider":   s.Provider,
	}
	if s.ImageURL != "" {
		r["imageUrl"] = s.ImageURL
	}
	if s.PublishedAt != "" {
		r["publishedAt"] = s.PublishedAt
	}
	return r
}
