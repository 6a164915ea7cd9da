package fetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/Storyline/internal/database"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
  <title>Talks resume at the harbor</title>
  <meta property="og:title" content="Talks resume at the harbor">
  <meta property="og:site_name" content="Harbor Gazette">
  <meta property="og:image" content="https://harbor.example/talks.jpg">
  <meta property="article:published_time" content="2024-03-04T10:00:00Z">
</head>
<body>
  <article>
    <h1>Talks resume at the harbor</h1>
    %s
  </article>
</body>
</html>`

func articleHTML() string {
	para := "<p>Union representatives and port operators met on Monday for the first time since the walkout began, " +
		"according to people familiar with the negotiations. Both sides described the meeting as constructive, " +
		"though no agreement on wages or shift patterns was reached and further sessions are planned this week.</p>"
	return fmt.Sprintf(articlePage, strings.Repeat(para, 6))
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func articleServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func storyWithSources(sources ...map[string]any) map[string]any {
	list := make([]any, len(sources))
	for i, s := range sources {
		list[i] = s
	}
	return map[string]any{
		"id":    "harbor",
		"title": "Harbor strike",
		"extra": "kept",
		"timeline": []any{
			map[string]any{"type": "image", "url": "https://harbor.example/cover.jpg"},
			map[string]any{"title": "Talks", "sources": list},
		},
	}
}

func sourcesOf(t *testing.T, db *database.DB) []any {
	t.Helper()
	doc, err := db.GetDocument("story", "harbor")
	if err != nil || doc == nil {
		t.Fatalf("expected stored document, err=%v", err)
	}
	if doc.Body["extra"] != "kept" {
		t.Errorf("expected unknown fields preserved, got %v", doc.Body["extra"])
	}
	ev := doc.Body["timeline"].([]any)[1].(map[string]any)
	return ev["sources"].([]any)
}

func TestEnrichAll(t *testing.T) {
	srv, hits := articleServer(t)
	db := openTestDB(t)
	db.UpsertDocument("story", "harbor", storyWithSources(
		map[string]any{"title": "Talks", "link": srv.URL + "/talks"},
		map[string]any{"title": "Done", "link": srv.URL + "/done", "sourceName": "Wire", "imageUrl": "https://wire.example/x.jpg"},
	))

	f := NewSourceEnricher(db, 5*time.Second, 10)
	pending, err := f.Pending()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending != 1 {
		t.Errorf("expected 1 pending source, got %d", pending)
	}

	r := f.EnrichAll()
	if r.Fetched != 1 || r.Enriched != 1 || r.Documents != 1 {
		t.Errorf("expected 1 fetched / 1 enriched / 1 document, got %+v", r)
	}
	if *hits != 1 {
		t.Errorf("expected 1 HTTP request, got %d", *hits)
	}

	src := sourcesOf(t, db)[0].(map[string]any)
	if src["siteName"] != "Harbor Gazette" {
		t.Errorf("expected site name from og:site_name, got %v", src["siteName"])
	}
	if src["imageUrl"] != "https://harbor.example/talks.jpg" {
		t.Errorf("expected image from og:image, got %v", src["imageUrl"])
	}
	if src["publishedAt"] != "2024-03-04T10:00:00.000Z" {
		t.Errorf("expected publish time, got %v", src["publishedAt"])
	}
	if src["title"] != "Talks" {
		t.Errorf("expected existing title kept, got %v", src["title"])
	}

	meta, _ := db.GetSourceMetadata(srv.URL + "/talks")
	if meta == nil || meta.Failed {
		t.Errorf("expected cached metadata, got %+v", meta)
	}

	r = f.EnrichAll()
	if r.Fetched != 0 || r.Enriched != 0 || *hits != 1 {
		t.Errorf("expected nothing left to enrich, got %+v (%d hits)", r, *hits)
	}
}

func TestEnrichAllUsesCache(t *testing.T) {
	db := openTestDB(t)
	site := "Cached Times"
	db.UpsertSourceMetadata(database.SourceMetadata{Link: "https://cached.example/a", SiteName: &site})
	db.UpsertDocument("story", "harbor", storyWithSources(
		map[string]any{"link": "https://cached.example/a", "publishedAt": map[string]any{"seconds": float64(1700000000)}},
	))

	r := NewSourceEnricher(db, time.Second, 10).EnrichAll()
	if r.Cached != 1 || r.Fetched != 0 || r.Enriched != 1 {
		t.Errorf("expected cache hit, got %+v", r)
	}
	src := sourcesOf(t, db)[0].(map[string]any)
	if src["siteName"] != "Cached Times" {
		t.Errorf("expected cached site name, got %v", src["siteName"])
	}
	if _, ok := src["publishedAt"].(map[string]any); !ok {
		t.Errorf("expected existing publishedAt object untouched, got %v", src["publishedAt"])
	}
}

func TestEnrichAllSkipsFailedDomains(t *testing.T) {
	srv, hits := articleServer(t)
	db := openTestDB(t)
	db.UpsertDocument("story", "harbor", storyWithSources(
		map[string]any{"link": srv.URL + "/missing/1"},
		map[string]any{"link": srv.URL + "/missing/2"},
	))

	r := NewSourceEnricher(db, 5*time.Second, 10).EnrichAll()
	if r.Failed != 2 || r.Fetched != 0 {
		t.Errorf("expected 2 failures, got %+v", r)
	}
	if *hits != 1 {
		t.Errorf("expected domain to be skipped after first 404, got %d hits", *hits)
	}

	meta, _ := db.GetSourceMetadata(srv.URL + "/missing/1")
	if meta == nil || !meta.Failed {
		t.Errorf("expected failed entry cached, got %+v", meta)
	}
}

func TestEnrichAllRetriesTransientFailures(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	var busy atomic.Bool
	busy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if busy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML())
	}))
	t.Cleanup(srv.Close)

	db := openTestDB(t)
	db.UpsertDocument("story", "harbor", storyWithSources(
		map[string]any{"link": downURL + "/gone"},
		map[string]any{"link": srv.URL + "/talks"},
	))

	f := NewSourceEnricher(db, 5*time.Second, 10)
	r := f.EnrichAll()
	if r.Failed != 2 || r.Fetched != 0 {
		t.Errorf("expected 2 failures, got %+v", r)
	}
	for _, link := range []string{downURL + "/gone", srv.URL + "/talks"} {
		if meta, _ := db.GetSourceMetadata(link); meta != nil {
			t.Errorf("expected no cache entry for %s, got %+v", link, meta)
		}
	}

	busy.Store(false)
	r = f.EnrichAll()
	if r.Fetched != 1 || r.Enriched != 1 {
		t.Errorf("expected retry to succeed, got %+v", r)
	}
	if src := sourcesOf(t, db)[1].(map[string]any); src["siteName"] != "Harbor Gazette" {
		t.Errorf("expected site name after retry, got %v", src["siteName"])
	}
}

func TestEnrichAllRespectsBudget(t *testing.T) {
	srv, hits := articleServer(t)
	db := openTestDB(t)
	db.UpsertDocument("story", "harbor", storyWithSources(
		map[string]any{"link": srv.URL + "/a"},
		map[string]any{"link": srv.URL + "/b"},
		map[string]any{"link": srv.URL + "/c"},
	))

	r := NewSourceEnricher(db, 5*time.Second, 2).EnrichAll()
	if r.Fetched != 2 || *hits != 2 {
		t.Errorf("expected fetches capped at 2, got %+v (%d hits)", r, *hits)
	}
}

func TestApplyMetadata(t *testing.T) {
	title, site, img, pub := "T", "S", "I", "2024-01-01T00:00:00.000Z"
	meta := &database.SourceMetadata{Title: &title, SiteName: &site, ImageURL: &img, PublishedAt: &pub}

	src := map[string]any{"sourceName": "Own", "image": "own.jpg", "date": "2023-01-01"}
	if applyMetadata(src, meta) != true {
		t.Error("expected blank title to be filled")
	}
	if _, ok := src["siteName"]; ok {
		t.Error("expected sourceName to block siteName")
	}
	if _, ok := src["imageUrl"]; ok {
		t.Error("expected image alias to block imageUrl")
	}
	if _, ok := src["publishedAt"]; ok {
		t.Error("expected date alias to block publishedAt")
	}
	if src["title"] != "T" {
		t.Errorf("expected title filled, got %v", src["title"])
	}
	if applyMetadata(src, meta) {
		t.Error("expected second apply to change nothing")
	}
}
