package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/Storyline/internal/database"
	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

const maxPageBytes = 5 << 20

// Result holds the results of an enrichment run.
type Result struct {
	Enriched  int // sources that received new fields
	Fetched   int // pages fetched over HTTP
	Cached    int // sources served from source_metadata
	Failed    int
	Documents int // documents rewritten
}

// SourceEnricher fills in missing source metadata (site name, image, title,
// publish time) by fetching each link and running readability on the page.
type SourceEnricher struct {
	db        *database.DB
	client    *http.Client
	maxFetch  int
	userAgent string
}

// NewSourceEnricher creates a new source enricher. maxFetch caps HTTP
// fetches per run; cached links do not count against it.
func NewSourceEnricher(db *database.DB, timeout time.Duration, maxFetch int) *SourceEnricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SourceEnricher{
		db:        db,
		maxFetch:  maxFetch,
		userAgent: "Storyline/1.0 (timeline enrichment)",
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Pending counts sources across all documents that are missing metadata.
func (f *SourceEnricher) Pending() (int, error) {
	docs, err := f.db.ListDocuments("")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		eachSource(doc.Body, func(src map[string]any) {
			if needsEnrichment(src) {
				n++
			}
		})
	}
	return n, nil
}

// EnrichAll enriches event sources in every stored document and writes the
// updated raw documents back. Unknown fields in the documents are preserved.
func (f *SourceEnricher) EnrichAll() *Result {
	docs, err := f.db.ListDocuments("")
	if err != nil {
		log.Printf("Error listing documents for enrichment: %v", err)
		return &Result{}
	}

	result := &Result{}
	run := &runState{failedDomains: make(map[string]struct{})}

	for _, doc := range docs {
		changed := false
		eachSource(doc.Body, func(src map[string]any) {
			if !needsEnrichment(src) {
				return
			}
			link := stringField(src, "link")

			meta, err := f.db.GetSourceMetadata(link)
			if err != nil {
				log.Printf("Error reading source cache for %s: %v", link, err)
				return
			}
			if meta != nil {
				result.Cached++
			} else {
				meta = f.fetchAndCache(link, run, result)
			}
			if meta == nil || meta.Failed {
				return
			}
			if applyMetadata(src, meta) {
				result.Enriched++
				changed = true
			}
		})

		if changed {
			if err := f.db.UpsertDocument(doc.Kind, doc.ID, doc.Body); err != nil {
				log.Printf("Error saving enriched %s/%s: %v", doc.Kind, doc.ID, err)
				continue
			}
			result.Documents++
		}
	}

	log.Printf("Source enrichment complete: %d enriched, %d fetched, %d cached, %d failed",
		result.Enriched, result.Fetched, result.Cached, result.Failed)
	return result
}

// runState tracks per-run fetch budget and domains that returned HTTP errors.
// Only permanent failures (4xx, nothing extractable) are cached as failed.
type runState struct {
	attempts      int
	failedDomains map[string]struct{}
}

func (f *SourceEnricher) fetchAndCache(link string, run *runState, result *Result) *database.SourceMetadata {
	if f.maxFetch > 0 && run.attempts >= f.maxFetch {
		return nil
	}

	u, _ := url.Parse(link)
	domain := ""
	if u != nil {
		domain = strings.ToLower(u.Host)
	}
	if _, failed := run.failedDomains[domain]; failed {
		result.Failed++
		return nil
	}

	run.attempts++
	meta, err := f.fetchMetadata(link)
	var herr *httpError
	switch {
	case errors.As(err, &herr):
		result.Failed++
		if domain != "" {
			run.failedDomains[domain] = struct{}{}
		}
		log.Printf("HTTP %d for %s, skipping remaining from %s", herr.code, link, domain)
		if herr.temporary() {
			return nil
		}
		meta = &database.SourceMetadata{Link: link, Failed: true}
	case err != nil:
		// Transport failures are retried on the next run.
		result.Failed++
		log.Printf("Fetch failed for %s: %v", link, err)
		return nil
	case meta == nil:
		result.Failed++
		log.Printf("No extractable metadata from: %s", link)
		meta = &database.SourceMetadata{Link: link, Failed: true}
	default:
		result.Fetched++
	}

	if err := f.db.UpsertSourceMetadata(*meta); err != nil {
		log.Printf("Error caching metadata for %s: %v", link, err)
	}
	return meta
}

func (f *SourceEnricher) fetchMetadata(link string) (*database.SourceMetadata, error) {
	req, err := http.NewRequest("GET", link, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	parsedURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, nil
	}

	meta := &database.SourceMetadata{
		Link:     link,
		Title:    nonEmpty(article.Title),
		SiteName: nonEmpty(article.SiteName),
		ImageURL: nonEmpty(article.Image),
	}
	if article.PublishedTime != nil {
		meta.PublishedAt = nonEmpty(timestamp.FormatISO(article.PublishedTime.UnixMilli()))
	}
	if meta.Title == nil && meta.SiteName == nil && meta.ImageURL == nil {
		return nil, nil
	}
	return meta, nil
}

// eachSource calls fn for every source object of every event in a raw
// document. Image blocks are skipped.
func eachSource(body map[string]any, fn func(src map[string]any)) {
	timeline, _ := body["timeline"].([]any)
	for _, entry := range timeline {
		ev, ok := entry.(map[string]any)
		if !ok || stringField(ev, "type") == "image" {
			continue
		}
		sources, _ := ev["sources"].([]any)
		for _, s := range sources {
			if src, ok := s.(map[string]any); ok && stringField(src, "link") != "" {
				fn(src)
			}
		}
	}
}

func needsEnrichment(src map[string]any) bool {
	hasName := stringField(src, "sourceName") != "" || stringField(src, "siteName") != ""
	hasImage := stringField(src, "imageUrl") != "" || stringField(src, "image") != ""
	return !hasName || !hasImage
}

// applyMetadata fills blank fields of a raw source and reports whether any
// were set. Existing values always win.
func applyMetadata(src map[string]any, meta *database.SourceMetadata) bool {
	changed := false
	set := func(key string, v *string, present ...string) {
		if v == nil || *v == "" {
			return
		}
		for _, k := range present {
			if hasValue(src, k) {
				return
			}
		}
		src[key] = *v
		changed = true
	}
	set("siteName", meta.SiteName, "sourceName", "siteName")
	set("imageUrl", meta.ImageURL, "imageUrl", "image")
	set("publishedAt", meta.PublishedAt, "publishedAt", "date")
	set("title", meta.Title, "title")
	return changed
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func hasValue(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

// temporary reports whether the status may clear up on a later run.
func (e *httpError) temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}
