package collect

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

const (
	newsAPIBaseURL  = "https://newsapi.org/v2/everything"
	newsAPIMaxPage  = 100
	newsAPIFallback = "NewsAPI"
)

// truncatedSuffix matches the "[+1234 chars]" marker NewsAPI appends to
// shortened content.
var truncatedSuffix = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// NewsAPIClient fetches articles from NewsAPI.
type NewsAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIClient creates a client reading its key from apiKeyEnv.
func NewNewsAPIClient(apiKeyEnv string) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:  os.Getenv(apiKeyEnv),
		baseURL: newsAPIBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

type newsAPIArticle struct {
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	Title       string `json:"title"`
	PublishedAt string `json:"publishedAt"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

// Search returns entries published since the given time that match query,
// newest first as NewsAPI sorts them. Removed and link-less articles are
// skipped.
func (c *NewsAPIClient) Search(query string, since time.Time, pageSize int) []Entry {
	if c.apiKey == "" {
		log.Println("NewsAPI not configured, skipping search")
		return nil
	}
	if pageSize <= 0 || pageSize > newsAPIMaxPage {
		pageSize = newsAPIMaxPage
	}

	params := url.Values{
		"q":        {query},
		"from":     {since.UTC().Format("2006-01-02")},
		"language": {"en"},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"publishedAt"},
	}

	req, err := http.NewRequest("GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		log.Printf("NewsAPI request error: %v", err)
		return nil
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("NewsAPI error: %v", err)
		return nil
	}
	defer resp.Body.Close()

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("NewsAPI decode error (HTTP %d): %v", resp.StatusCode, err)
		return nil
	}
	if resp.StatusCode != http.StatusOK || result.Status != "ok" {
		log.Printf("NewsAPI HTTP %d: %s %s", resp.StatusCode, result.Code, result.Message)
		return nil
	}

	var entries []Entry
	for _, a := range result.Articles {
		if e, ok := a.entry(); ok {
			entries = append(entries, e)
		}
	}

	log.Printf("Fetched %d articles from NewsAPI for query: %s", len(entries), query)
	return entries
}

func (a newsAPIArticle) entry() (Entry, bool) {
	title := strings.TrimSpace(a.Title)
	if a.URL == "" || title == "" || title == "[Removed]" || a.URL == "https://removed.com" {
		return Entry{}, false
	}

	summary := stripHTML(a.Description)
	if summary == "" {
		summary = stripHTML(truncatedSuffix.ReplaceAllString(a.Content, ""))
	}

	source := strings.TrimSpace(a.Source.Name)
	if source == "" {
		source = newsAPIFallback
	}

	return Entry{
		URL:       a.URL,
		Title:     title,
		Summary:   summary,
		Source:    source,
		ImageURL:  a.URLToImage,
		Published: timestamp.Time(timestamp.CoerceMs(a.PublishedAt)),
		Provider:  ProviderNewsAPI,
	}, true
}
