package content

import "testing"

func TestNormalizeSourceDefaults(t *testing.T) {
	s := NormalizeSource(map[string]any{"link": "https://a.example", "siteName": "Example Wire"})
	if s.Title != "" {
		t.Errorf("expected empty title, got %q", s.Title)
	}
	if s.SourceName != "Example Wire" {
		t.Errorf("expected siteName fallback, got %q", s.SourceName)
	}
	if s.Provider != DefaultProvider {
		t.Errorf("expected provider %q, got %q", DefaultProvider, s.Provider)
	}

	s = NormalizeSource(map[string]any{
		"link":        "https://b.example",
		"sourceName":  "Primary",
		"siteName":    "Secondary",
		"image":       "https://b.example/og.png",
		"publishedAt": map[string]any{"seconds": float64(1700000000)},
		"provider":    "newsapi",
	})
	if s.SourceName != "Primary" {
		t.Errorf("expected sourceName to win, got %q", s.SourceName)
	}
	if s.ImageURL != "https://b.example/og.png" {
		t.Errorf("expected image alias, got %q", s.ImageURL)
	}
	if s.PublishedAt != "2023-11-14T22:13:20.000Z" {
		t.Errorf("unexpected publish date %q", s.PublishedAt)
	}
	if s.Provider != "newsapi" {
		t.Errorf("expected provider 'newsapi', got %q", s.Provider)
	}
}

func TestNormalizeSourceNonObject(t *testing.T) {
	for _, raw := range []any{nil, "https://a.example", float64(3)} {
		s := NormalizeSource(raw)
		if s.Link != "" || s.Provider != DefaultProvider {
			t.Errorf("NormalizeSource(%#v) = %+v, want empty source", raw, s)
		}
	}
}

func TestNormalizeSourceNonStringLink(t *testing.T) {
	s := NormalizeSource(map[string]any{"link": float64(12)})
	if s.Link != "" {
		t.Errorf("expected non-string link to be blank, got %q", s.Link)
	}
}

func TestNormalizeSourcesDropsMissingLinks(t *testing.T) {
	got := NormalizeSources([]any{
		map[string]any{"title": "x"},
		map[string]any{"link": "   "},
		"not an object",
		map[string]any{"link": "https://kept.example", "title": "Kept"},
	})
	if len(got) != 1 {
		t.Fatalf("expected 1 source, got %d", len(got))
	}
	if got[0].Title != "Kept" {
		t.Errorf("expected 'Kept', got %q", got[0].Title)
	}

	if got := NormalizeSources("nope"); got == nil || len(got) != 0 {
		t.Errorf("expected empty list for non-array, got %v", got)
	}
}
