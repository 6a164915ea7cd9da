package collect

import (
	"html"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 20

// FeedEntry represents a parsed feed entry.
type FeedEntry struct {
	URL       string
	Title     string
	Published time.Time // zero when the feed gave no date
	Summary   string
	Source    string
	ImageURL  string
}

// FeedConfig maps a feed onto the document its entries are appended to.
type FeedConfig struct {
	URL      string
	Name     string
	Kind     string
	ID       string
	Category string
	Tags     []string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	parser *gofeed.Parser
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser() *FeedParser {
	return &FeedParser{parser: gofeed.NewParser()}
}

// Parse fetches one feed and returns its entries published after cutoff.
func (fp *FeedParser) Parse(fc FeedConfig, cutoff time.Time) ([]FeedEntry, error) {
	name := fc.Name
	if name == "" {
		name = extractSourceName(fc.URL)
	}

	feed, err := fp.parser.ParseURL(fc.URL)
	if err != nil {
		return nil, err
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}

		entry := parseItem(item, name)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.Published, cutoff) {
			entries = append(entries, *entry)
		}
	}

	log.Printf("Parsed %d entries from %s", len(entries), name)
	return entries, nil
}

func parseItem(item *gofeed.Item, source string) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	var summary string
	if item.Description != "" {
		summary = stripHTML(item.Description)
	} else if item.Content != "" {
		summary = stripHTML(item.Content)
	}

	return &FeedEntry{
		URL:       itemURL,
		Title:     title,
		Published: published,
		Summary:   summary,
		Source:    source,
		ImageURL:  itemImage(item),
	}
}

// itemImage returns the item's image, falling back to the first image
// enclosure.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func isWithinWindow(published, cutoff time.Time) bool {
	if published.IsZero() {
		return true // benefit of the doubt
	}
	return !published.Before(cutoff)
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

func stripHTML(text string) string {
	s := html.UnescapeString(textPolicy.Sanitize(text))

	// Normalize whitespace
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return feedURL
	}

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
