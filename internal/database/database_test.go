package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestUpsertDocument(t *testing.T) {
	db := openTestDB(t)
	body := map[string]any{
		"title": "Harbor strike",
		"timeline": []any{
			map[string]any{"title": "Walkout", "significance": float64(3)},
		},
	}
	if err := db.UpsertDocument("story", "harbor", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := db.GetDocument("story", "harbor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc == nil {
		t.Fatal("expected document")
	}
	if doc.Body["title"] != "Harbor strike" {
		t.Errorf("expected title 'Harbor strike', got %v", doc.Body["title"])
	}
	timeline, ok := doc.Body["timeline"].([]any)
	if !ok || len(timeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %v", doc.Body["timeline"])
	}
	if doc.CreatedAt == nil || doc.UpdatedAt == nil {
		t.Error("expected timestamps to be set")
	}
}

func TestUpsertDocumentReplaces(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDocument("theme", "climate", map[string]any{"title": "Old"})
	if err := db.UpsertDocument("theme", "climate", map[string]any{"title": "New"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs, err := db.ListDocuments("theme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Body["title"] != "New" {
		t.Errorf("expected replaced body, got %v", docs[0].Body["title"])
	}
}

func TestUpsertDocumentRequiresID(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertDocument("story", "", map[string]any{}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := db.UpsertDocument("article", "x", map[string]any{}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestGetDocumentMissing(t *testing.T) {
	db := openTestDB(t)
	doc, err := db.GetDocument("story", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document, got %+v", doc)
	}
}

func TestListDocuments(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDocument("story", "b", map[string]any{"title": "B"})
	db.UpsertDocument("story", "a", map[string]any{"title": "A"})
	db.UpsertDocument("theme", "t", map[string]any{"title": "T"})

	stories, err := db.ListDocuments("story")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(stories))
	}
	if stories[0].ID != "a" {
		t.Errorf("expected ordering by id, got %q first", stories[0].ID)
	}

	all, _ := db.ListDocuments("")
	if len(all) != 3 {
		t.Errorf("expected 3 documents, got %d", len(all))
	}
}

func TestDeleteDocument(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDocument("story", "a", map[string]any{"title": "A"})

	deleted, err := db.DeleteDocument("story", "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected document to be deleted")
	}

	deleted, _ = db.DeleteDocument("story", "a")
	if deleted {
		t.Error("expected second delete to report false")
	}
}

func TestSourceMetadataLifecycle(t *testing.T) {
	db := openTestDB(t)

	m, err := db.GetSourceMetadata("https://news.example/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("expected no cached metadata")
	}

	err = db.UpsertSourceMetadata(SourceMetadata{
		Link:     "https://news.example/a",
		Title:    ptr("Headline"),
		SiteName: ptr("Example News"),
		ImageURL: ptr("https://news.example/a.jpg"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, _ = db.GetSourceMetadata("https://news.example/a")
	if m == nil {
		t.Fatal("expected cached metadata")
	}
	if m.SiteName == nil || *m.SiteName != "Example News" {
		t.Errorf("expected site name 'Example News', got %v", m.SiteName)
	}
	if m.PublishedAt != nil {
		t.Errorf("expected nil published date, got %q", *m.PublishedAt)
	}
	if m.Failed {
		t.Error("expected failed=false")
	}

	db.UpsertSourceMetadata(SourceMetadata{Link: "https://news.example/a", Failed: true})
	m, _ = db.GetSourceMetadata("https://news.example/a")
	if !m.Failed || m.Title != nil {
		t.Errorf("expected replaced failed entry, got %+v", m)
	}
}

func TestRankSnapshots(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRankedAt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != "" {
		t.Errorf("expected empty last ranked, got %q", last)
	}

	err = db.ReplaceRankSnapshots("story", []RankSnapshot{
		{ID: "a", Position: 0, Score: 0.9, Recency: 0.5, Velocity: 1, RankedAt: "2024-03-10T12:00:00Z"},
		{ID: "b", Position: 1, Score: 0.2, Recency: 0.5, Velocity: 0, RankedAt: "2024-03-10T12:00:00Z"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = db.ReplaceRankSnapshots("story", []RankSnapshot{
		{ID: "b", Position: 0, Score: 0.7, RankedAt: "2024-03-11T08:00:00Z"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snaps, _ := db.GetRankSnapshots("story")
	if len(snaps) != 1 {
		t.Fatalf("expected previous ranking replaced, got %d snapshots", len(snaps))
	}
	if snaps[0].ID != "b" || snaps[0].Kind != "story" {
		t.Errorf("unexpected snapshot %+v", snaps[0])
	}

	last, _ = db.GetLastRankedAt()
	if last != "2024-03-11T08:00:00Z" {
		t.Errorf("expected last ranked '2024-03-11T08:00:00Z', got %q", last)
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)
	r, err := db.GetLastReport()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Fatal("expected no report")
	}

	db.InsertReport(RunReport{EventsAdded: 1})
	if _, err := db.InsertReport(RunReport{EventsAdded: 4, SourcesEnriched: 2, Dropped: 1, ItemsRanked: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, _ = db.GetLastReport()
	if r == nil || r.EventsAdded != 4 || r.ItemsRanked != 3 {
		t.Errorf("expected latest report, got %+v", r)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDocument("story", "a", map[string]any{"timeline": []any{map[string]any{}, map[string]any{}}})
	db.UpsertDocument("story", "b", map[string]any{"title": "no timeline"})
	db.UpsertDocument("theme", "t", map[string]any{"timeline": []any{map[string]any{}}})
	db.UpsertSourceMetadata(SourceMetadata{Link: "https://ok.example"})
	db.UpsertSourceMetadata(SourceMetadata{Link: "https://bad.example", Failed: true})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Stories != 2 || stats.Themes != 1 {
		t.Errorf("expected 2 stories / 1 theme, got %d/%d", stats.Stories, stats.Themes)
	}
	if stats.Events != 3 {
		t.Errorf("expected 3 events, got %d", stats.Events)
	}
	if stats.CachedSources != 1 || stats.FailedSources != 1 {
		t.Errorf("expected 1 cached / 1 failed, got %d/%d", stats.CachedSources, stats.FailedSources)
	}
}

func TestRevision(t *testing.T) {
	db := openTestDB(t)

	rev, err := db.Revision("story")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 0 {
		t.Errorf("expected revision 0 before any write, got %d", rev)
	}

	bump := func(step string, fn func() error) {
		t.Helper()
		before, _ := db.Revision("story")
		if err := fn(); err != nil {
			t.Fatalf("%s: %v", step, err)
		}
		after, err := db.Revision("story")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if after <= before {
			t.Errorf("expected %s to advance revision past %d, got %d", step, before, after)
		}
	}
	bump("insert", func() error { return db.UpsertDocument("story", "s1", map[string]any{"title": "A"}) })
	bump("replace", func() error { return db.UpsertDocument("story", "s1", map[string]any{"title": "B"}) })
	bump("delete", func() error {
		_, err := db.DeleteDocument("story", "s1")
		return err
	})

	if rev, _ := db.Revision("theme"); rev != 0 {
		t.Errorf("expected theme revision untouched, got %d", rev)
	}
}
