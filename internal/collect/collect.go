package collect

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/Storyline/internal/config"
	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

// Provider tags written on collected sources.
const (
	ProviderRSS     = "rss"
	ProviderNewsAPI = "newsapi"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	NewEvents  int
	Duplicates int
	Documents  map[string]int // "kind/id" -> new events
}

// Target is the document a source's entries are appended to.
type Target struct {
	Kind     content.ItemKind
	ID       string
	Title    string
	Category string
	Tags     []string
}

// Collector appends new feed and NewsAPI entries to story and theme timelines.
type Collector struct {
	db         *database.DB
	feedParser *FeedParser
	feeds      []FeedConfig
	newsClient *NewsAPIClient
	newsQuery  string
	newsTarget Target
	daysBack   int
	now        func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(cfg *config.Config, db *database.DB, daysBack int) *Collector {
	c := &Collector{
		db:       db,
		daysBack: daysBack,
		now:      time.Now,
	}

	// Set up feed parser
	if len(cfg.Sources.Feeds) > 0 {
		c.feeds = make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			c.feeds[i] = FeedConfig{
				URL:      f.URL,
				Name:     f.Name,
				Kind:     f.Kind,
				ID:       f.ID,
				Category: f.Category,
				Tags:     f.Tags,
			}
		}
		c.feedParser = NewFeedParser()
	}

	// Set up NewsAPI client
	apiCfg := cfg.Sources.APIs.NewsAPI
	if apiCfg.Enabled && apiCfg.Query != "" {
		c.newsClient = NewNewsAPIClient(apiCfg.APIKeyEnv)
		c.newsQuery = apiCfg.Query
		kind, ok := content.ParseKind(apiCfg.Kind)
		if !ok {
			kind = content.Story
		}
		c.newsTarget = Target{Kind: kind, ID: apiCfg.DocumentID, Title: apiCfg.Title}
	}

	return c
}

// FeedTarget returns the document a feed is collected into. Feeds without an
// explicit id get a stable id derived from their URL.
func FeedTarget(fc FeedConfig) Target {
	kind, ok := content.ParseKind(fc.Kind)
	if !ok {
		kind = content.Story
	}
	id := fc.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fc.URL)).String()
	}
	title := fc.Name
	if title == "" {
		title = extractSourceName(fc.URL)
	}
	return Target{Kind: kind, ID: id, Title: title, Category: fc.Category, Tags: fc.Tags}
}

// Collect collects entries from all configured sources.
func (c *Collector) Collect() *Result {
	r := &Result{Documents: make(map[string]int)}
	cutoff := c.now().AddDate(0, 0, -c.daysBack)

	// Collect from RSS feeds
	if c.feedParser != nil {
		log.Println("Collecting from RSS feeds...")
		for _, fc := range c.feeds {
			entries, err := c.feedParser.Parse(fc, cutoff)
			if err != nil {
				log.Printf("Failed to parse feed %s: %v", fc.URL, err)
				continue
			}
			r.TotalFound += len(entries)

			items := make([]Entry, len(entries))
			for i, e := range entries {
				items[i] = Entry{
					URL:       e.URL,
					Title:     e.Title,
					Summary:   e.Summary,
					Source:    e.Source,
					ImageURL:  e.ImageURL,
					Published: e.Published,
					Provider:  ProviderRSS,
				}
			}
			c.appendTo(FeedTarget(fc), items, r)
		}
	}

	// Collect from NewsAPI
	if c.newsClient != nil && c.newsClient.IsConfigured() {
		log.Println("Collecting from NewsAPI...")
		entries := c.newsClient.Search(c.newsQuery, cutoff, newsAPIMaxPage)
		r.TotalFound += len(entries)
		c.appendTo(c.newsTarget, entries, r)
	}

	log.Printf("Collection complete: %d found, %d new, %d duplicates", r.TotalFound, r.NewEvents, r.Duplicates)
	return r
}

func (c *Collector) appendTo(t Target, items []Entry, r *Result) {
	added, dups, err := AppendEntries(c.db, t, items, c.now())
	if err != nil {
		log.Printf("Failed to update %s/%s: %v", t.Kind, t.ID, err)
		return
	}
	r.NewEvents += added
	r.Duplicates += dups
	if added > 0 {
		r.Documents[string(t.Kind)+"/"+t.ID] += added
	}
}

// Entry is one collected article about to become a timeline event.
type Entry struct {
	URL       string
	Title     string
	Summary   string
	Source    string
	ImageURL  string
	Published time.Time
	Provider  string
}

// AppendEntries appends entries whose link is not yet cited anywhere in the
// target's timeline, creating the document if needed. New events are added
// oldest first so the timeline stays chronological.
func AppendEntries(db *database.DB, t Target, entries []Entry, now time.Time) (added, duplicates int, err error) {
	if t.ID == "" {
		return 0, 0, fmt.Errorf("target of kind %s has no id", t.Kind)
	}

	doc, err := db.GetDocument(string(t.Kind), t.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading %s/%s: %w", t.Kind, t.ID, err)
	}

	nowMs := now.UnixMilli()
	var body map[string]any
	if doc != nil {
		body = doc.Body
	} else {
		body = map[string]any{
			"id":        t.ID,
			"title":     t.Title,
			"createdAt": float64(nowMs),
			"timeline":  []any{},
		}
		if t.Category != "" {
			body["category"] = t.Category
		}
		if len(t.Tags) > 0 {
			tags := make([]any, len(t.Tags))
			for i, tag := range t.Tags {
				tags[i] = tag
			}
			body["tags"] = tags
		}
	}

	seen := citedLinks(body["timeline"])
	var fresh []Entry
	for _, e := range entries {
		if e.URL == "" || seen[e.URL] {
			duplicates++
			continue
		}
		seen[e.URL] = true
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return 0, duplicates, nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return publishedOr(fresh[i], now).Before(publishedOr(fresh[j], now))
	})

	timeline, _ := body["timeline"].([]any)
	for _, e := range fresh {
		timeline = append(timeline, eventRecord(e, now))
	}
	body["timeline"] = timeline
	body["updatedAt"] = float64(nowMs)

	if err := db.UpsertDocument(string(t.Kind), t.ID, body); err != nil {
		return 0, duplicates, fmt.Errorf("saving %s/%s: %w", t.Kind, t.ID, err)
	}
	return len(fresh), duplicates, nil
}

func citedLinks(timeline any) map[string]bool {
	seen := make(map[string]bool)
	for _, ev := range content.Events(content.NormalizeTimeline(timeline)) {
		for _, s := range ev.Sources {
			seen[s.Link] = true
		}
	}
	return seen
}

func publishedOr(e Entry, now time.Time) time.Time {
	if e.Published.IsZero() {
		return now
	}
	return e.Published
}

func eventRecord(e Entry, now time.Time) map[string]any {
	published := timestamp.FormatISO(publishedOr(e, now).UnixMilli())
	source := map[string]any{
		"title":       e.Title,
		"link":        e.URL,
		"sourceName":  e.Source,
		"publishedAt": published,
		"provider":    e.Provider,
	}
	if e.ImageURL != "" {
		source["imageUrl"] = e.ImageURL
	}
	return map[string]any{
		"type":         "event",
		"title":        e.Title,
		"description":  e.Summary,
		"date":         published,
		"significance": float64(1),
		"sources":      []any{source},
		"createdAt":    float64(now.UnixMilli()),
		"updatedAt":    float64(now.UnixMilli()),
	}
}
