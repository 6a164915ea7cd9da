package collect

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/Storyline/internal/config"
	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Harbor News</title>
  <link>https://harbor.example</link>
  <item>
    <title>Talks resume</title>
    <link>https://harbor.example/talks</link>
    <description><![CDATA[<p>Union and port operators meet.</p>]]></description>
    <pubDate>Mon, 04 Mar 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://harbor.example/talks.jpg" type="image/jpeg" length="0"/>
  </item>
  <item>
    <title>Walkout begins</title>
    <link>https://harbor.example/walkout</link>
    <pubDate>Fri, 01 Mar 2024 06:00:00 GMT</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://harbor.example/untitled</link>
  </item>
</channel>
</rss>`

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeed)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedParserParse(t *testing.T) {
	srv := feedServer(t)
	entries, err := NewFeedParser().Parse(FeedConfig{URL: srv.URL, Name: "Harbor"}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (untitled skipped), got %d", len(entries))
	}
	if entries[0].Summary != "Union and port operators meet." {
		t.Errorf("expected stripped summary, got %q", entries[0].Summary)
	}
	if entries[0].ImageURL != "https://harbor.example/talks.jpg" {
		t.Errorf("expected enclosure image, got %q", entries[0].ImageURL)
	}
	if entries[0].Source != "Harbor" {
		t.Errorf("expected source 'Harbor', got %q", entries[0].Source)
	}

	recent, _ := NewFeedParser().Parse(FeedConfig{URL: srv.URL}, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
	if len(recent) != 1 || recent[0].Title != "Talks resume" {
		t.Errorf("expected cutoff to drop the older entry, got %+v", recent)
	}
}

func TestFeedTarget(t *testing.T) {
	a := FeedTarget(FeedConfig{URL: "https://feeds.example.com/world.xml", Kind: "themes"})
	b := FeedTarget(FeedConfig{URL: "https://feeds.example.com/world.xml"})
	if a.ID == "" || a.ID != b.ID {
		t.Errorf("expected stable derived id, got %q and %q", a.ID, b.ID)
	}
	if a.Kind != content.Theme || b.Kind != content.Story {
		t.Errorf("unexpected kinds %q, %q", a.Kind, b.Kind)
	}
	if a.Title != "Example" {
		t.Errorf("expected title from host, got %q", a.Title)
	}

	c := FeedTarget(FeedConfig{URL: "https://x.example/rss", ID: "fixed", Name: "X"})
	if c.ID != "fixed" || c.Title != "X" {
		t.Errorf("expected explicit id and name, got %+v", c)
	}
}

func TestAppendEntriesCreatesDocument(t *testing.T) {
	db := openTestDB(t)
	target := Target{Kind: content.Story, ID: "harbor", Title: "Harbor strike", Category: "Labor", Tags: []string{"ports"}}
	entries := []Entry{
		{URL: "https://harbor.example/talks", Title: "Talks resume", Source: "Harbor", Provider: ProviderRSS,
			Published: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)},
		{URL: "https://harbor.example/walkout", Title: "Walkout begins", Source: "Harbor", Provider: ProviderRSS,
			Published: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)},
	}

	added, dups, err := AppendEntries(db, target, entries, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 2 || dups != 0 {
		t.Errorf("expected 2 added / 0 duplicates, got %d/%d", added, dups)
	}

	doc, _ := db.GetDocument("story", "harbor")
	if doc == nil {
		t.Fatal("expected document to be created")
	}
	it := content.NormalizeItem(content.Story, doc.Body)
	if it.Title != "Harbor strike" || it.Category != "Labor" {
		t.Errorf("unexpected item header %+v", it)
	}
	events := it.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Walkout begins" {
		t.Errorf("expected oldest event first, got %q", events[0].Title)
	}
	if events[0].Date != "2024-03-01T06:00:00.000Z" {
		t.Errorf("unexpected event date %q", events[0].Date)
	}
	if events[1].Sources[0].Provider != ProviderRSS {
		t.Errorf("expected provider %q, got %q", ProviderRSS, events[1].Sources[0].Provider)
	}
	if events[1].ActivityMs() != testNow.UnixMilli() {
		t.Errorf("expected activity at collection time, got %d", events[1].ActivityMs())
	}
}

func TestAppendEntriesSkipsCitedLinks(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDocument("theme", "climate", map[string]any{
		"id":    "climate",
		"title": "Climate",
		"timeline": []any{
			map[string]any{"title": "Existing", "sources": []any{map[string]any{"link": "https://a.example"}}},
		},
	})

	target := Target{Kind: content.Theme, ID: "climate"}
	added, dups, err := AppendEntries(db, target, []Entry{
		{URL: "https://a.example", Title: "Dup"},
		{URL: "https://b.example", Title: "New"},
		{URL: "https://b.example", Title: "New again"},
	}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 1 || dups != 2 {
		t.Errorf("expected 1 added / 2 duplicates, got %d/%d", added, dups)
	}

	doc, _ := db.GetDocument("theme", "climate")
	timeline := doc.Body["timeline"].([]any)
	if len(timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(timeline))
	}
	// Undated entries fall back to the collection time.
	last := content.NormalizeTimeline(timeline)[1].(*content.EventBlock)
	if last.DateMs() != testNow.UnixMilli() {
		t.Errorf("expected undated entry to use now, got %q", last.Date)
	}

	if _, _, err := AppendEntries(db, Target{Kind: content.Story}, nil, testNow); err == nil {
		t.Error("expected error for target without id")
	}
}

func TestCollectorCollect(t *testing.T) {
	srv := feedServer(t)
	db := openTestDB(t)
	cfg := &config.Config{}
	cfg.Sources.Feeds = []config.Feed{{URL: srv.URL, Name: "Harbor", Kind: "story", ID: "harbor"}}

	c := NewCollector(cfg, db, 36500)
	c.now = func() time.Time { return testNow }

	r := c.Collect()
	if r.TotalFound != 2 || r.NewEvents != 2 {
		t.Errorf("expected 2 found / 2 new, got %d/%d", r.TotalFound, r.NewEvents)
	}
	if r.Documents["story/harbor"] != 2 {
		t.Errorf("expected per-document count, got %v", r.Documents)
	}

	r = c.Collect()
	if r.NewEvents != 0 || r.Duplicates != 2 {
		t.Errorf("expected second run to find only duplicates, got %d new / %d dup", r.NewEvents, r.Duplicates)
	}
}

func TestNewsAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"status":"ok","articles":[
			{"url":"https://wire.example/1","title":" Vote delayed ","publishedAt":"2024-03-09T08:00:00Z",
			 "description":"Council postpones.","urlToImage":"https://wire.example/1.jpg","source":{"name":"Wire"}},
			{"url":"https://removed.com","title":"[Removed]"},
			{"url":"","title":"No link"}
		]}`)
	}))
	defer srv.Close()

	c := &NewsAPIClient{apiKey: "secret", baseURL: srv.URL, client: srv.Client()}
	articles := c.Search("vote", testNow.AddDate(0, 0, -7), 500)
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	a := articles[0]
	if a.Title != "Vote delayed" || a.Source != "Wire" || a.ImageURL != "https://wire.example/1.jpg" || a.Provider != ProviderNewsAPI {
		t.Errorf("unexpected article %+v", a)
	}
	if !a.Published.Equal(time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected publish time %v", a.Published)
	}

	c.apiKey = ""
	if c.IsConfigured() || c.Search("vote", testNow, 10) != nil {
		t.Error("expected unconfigured client to return nothing")
	}
}

func TestExtractSourceName(t *testing.T) {
	cases := map[string]string{
		"https://www.theguardian.com/rss": "Theguardian",
		"https://feeds.arstechnica.com/x": "Arstechnica",
		"https://localhost/feed":          "Localhost",
	}
	for in, want := range cases {
		if got := extractSourceName(in); got != want {
			t.Errorf("extractSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportExportArray(t *testing.T) {
	db := openTestDB(t)
	data := []byte(`[
		{"id": "harbor", "title": "Harbor strike", "timeline": [{"event": "Walkout", "timestamp": {"_seconds": 1709272800}}]},
		{"_id": 42, "title": "Numeric id"},
		{"title": "No id"},
		"not an object"
	]`)

	r, err := ImportExport(db, data, content.Theme)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Imported[content.Theme] != 2 || r.Skipped != 1 {
		t.Errorf("expected 2 imported / 1 skipped, got %+v", r)
	}

	doc, _ := db.GetDocument("theme", "42")
	if doc == nil || doc.Body["title"] != "Numeric id" {
		t.Errorf("expected document keyed by numeric id, got %+v", doc)
	}
	doc, _ = db.GetDocument("theme", "harbor")
	if _, ok := doc.Body["timeline"].([]any)[0].(map[string]any)["event"]; !ok {
		t.Error("expected raw record stored unchanged")
	}
}

func TestImportExportObject(t *testing.T) {
	db := openTestDB(t)
	data := []byte(`{
		"stories": [{"id": "a", "title": "A"}],
		"themes": [{"id": "b", "title": "B"}, {"id": "c", "title": "C"}],
		"exportedAt": "2024-03-10"
	}`)

	r, err := ImportExport(db, data, content.Story)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Imported[content.Story] != 1 || r.Imported[content.Theme] != 2 {
		t.Errorf("unexpected counts %+v", r.Imported)
	}

	for _, bad := range []string{`{"other": []}`, `{"stories": {}}`, `"text"`, `{`} {
		if _, err := ImportExport(db, []byte(bad), content.Story); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML("<p>Fish &amp; chips</p><p>daily</p><script>track()</script>")
	if got != "Fish & chips daily" {
		t.Errorf("expected plain text, got %q", got)
	}
}
