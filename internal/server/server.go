package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
	"github.com/TobiSchelling/Storyline/internal/pipeline"
	"github.com/TobiSchelling/Storyline/internal/ranking"
	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var (
	md         = goldmark.New()
	htmlPolicy = bluemonday.UGCPolicy()
)

// essentialSignificance is the minimum significance shown in the
// abbreviated timeline view.
const essentialSignificance = 3

// Options tunes what the server shows.
type Options struct {
	SuggestionLimit int
	HeadlineLimit   int
}

// Server is the HTTP server for browsing ranked stories and themes.
type Server struct {
	db    *database.DB
	pool  *ranking.Pool
	opts  Options
	pages map[string]*template.Template
	mux   *http.ServeMux
	now   func() time.Time
}

// New creates a new Server. Items are served from pool, which is filled
// from the database on first use of each kind. A nil pool gets a fresh one.
func New(db *database.DB, pool *ranking.Pool, opts Options) (*Server, error) {
	if pool == nil {
		pool = ranking.NewPool()
	}
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = ranking.DefaultSuggestionLimit
	}
	if opts.HeadlineLimit <= 0 {
		opts.HeadlineLimit = content.DefaultHeadlineLimit
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"label":    timestamp.Label,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "item.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:    db,
		pool:  pool,
		opts:  opts,
		pages: pages,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /item/{kind}/{id}", s.handleItem)

	// JSON
	s.mux.HandleFunc("GET /api/feed", s.handleFeed)
	s.mux.HandleFunc("GET /api/items/{kind}/{id}", s.handleAPIItem)
	s.mux.HandleFunc("GET /api/items/{kind}/{id}/suggestions", s.handleSuggestions)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
}

// items returns the pooled items of a kind, reloading them whenever the
// stored documents of that kind changed since the pool was filled.
func (s *Server) items(kind content.ItemKind) ([]*content.Item, error) {
	rev, err := s.db.Revision(string(kind))
	if err != nil {
		return nil, fmt.Errorf("reading %s revision: %w", kind, err)
	}
	if loaded, ok := s.pool.Loaded(kind); !ok || loaded != rev {
		items, err := pipeline.LoadItems(s.db, kind)
		if err != nil {
			return nil, err
		}
		s.pool.Replace(kind, items, rev)
	}
	return s.pool.Items(kind), nil
}

// lookup resolves the {kind} and {id} path values to a pooled item.
func (s *Server) lookup(r *http.Request) (*content.Item, int) {
	kind, ok := content.ParseKind(r.PathValue("kind"))
	if !ok {
		return nil, http.StatusNotFound
	}
	if _, err := s.items(kind); err != nil {
		log.Printf("Error loading %s items: %v", kind, err)
		return nil, http.StatusInternalServerError
	}
	it, ok := s.pool.Get(kind, r.PathValue("id"))
	if !ok {
		return nil, http.StatusNotFound
	}
	return it, http.StatusOK
}

func (s *Server) suggestionsFor(it *content.Item) []ranking.Suggestion {
	pool, err := s.items(it.Kind)
	if err != nil {
		log.Printf("Error loading %s items: %v", it.Kind, err)
		return nil
	}
	return ranking.Suggest(it, pool, s.opts.SuggestionLimit, s.now())
}

type card struct {
	Kind      content.ItemKind
	ID        string
	Title     string
	Category  string
	ImageURL  string
	Updated   string
	Headlines []content.Headline
}

type section struct {
	Title string
	Cards []card
}

var sectionTitles = map[content.ItemKind]string{
	content.Story: "Stories",
	content.Theme: "Themes",
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	var sections []section
	for _, kind := range content.Kinds {
		items, err := s.items(kind)
		if err != nil {
			log.Printf("Error loading %s items: %v", kind, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		sec := section{Title: sectionTitles[kind]}
		for _, scored := range ranking.Rank(items, now) {
			it := scored.Item
			sec.Cards = append(sec.Cards, card{
				Kind:      kind,
				ID:        it.ID,
				Title:     it.Title,
				Category:  ranking.PrimaryCategory(it),
				ImageURL:  it.ImageURL,
				Updated:   timestamp.Relative(lastTouched(it), now),
				Headlines: it.Headlines(s.opts.HeadlineLimit),
			})
		}
		sections = append(sections, sec)
	}

	s.render(w, "index.html", map[string]any{
		"Sections": sections,
	})
}

type blockView struct {
	Event *content.EventBlock
	Image *content.ImageBlock
}

type phaseGroup struct {
	Phase  *content.Phase
	Blocks []blockView
}

// groupByPhase splits blocks into runs that share a phase. Blocks outside
// every phase form groups with a nil Phase.
func groupByPhase(blocks []content.Block, phases []content.Phase) []phaseGroup {
	var groups []phaseGroup
	for _, b := range blocks {
		p := content.PhaseAt(phases, b.OriginalIndex())
		if len(groups) == 0 || groups[len(groups)-1].Phase != p {
			groups = append(groups, phaseGroup{Phase: p})
		}
		g := &groups[len(groups)-1]
		switch v := b.(type) {
		case *content.EventBlock:
			g.Blocks = append(g.Blocks, blockView{Event: v})
		case *content.ImageBlock:
			g.Blocks = append(g.Blocks, blockView{Image: v})
		}
	}
	return groups
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	it, status := s.lookup(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	essential := r.URL.Query().Get("view") == "essential"
	blocks := it.Timeline
	if essential {
		blocks = content.FilterSignificance(blocks, essentialSignificance)
	}

	var analysis *content.Analysis
	if !it.Analysis.IsEmpty() {
		analysis = it.Analysis
	}

	s.render(w, "item.html", map[string]any{
		"Item":        it,
		"Essential":   essential,
		"Groups":      groupByPhase(blocks, it.Phases),
		"Analysis":    analysis,
		"Suggestions": s.suggestionsFor(it),
	})
}

type feedEntry struct {
	Kind      content.ItemKind   `json:"kind"`
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Category  string             `json:"category,omitempty"`
	ImageURL  string             `json:"imageUrl,omitempty"`
	Ranking   ranking.Breakdown  `json:"ranking"`
	Headlines []content.Headline `json:"headlines"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	kind := content.Story
	if q := r.URL.Query().Get("kind"); q != "" {
		var ok bool
		if kind, ok = content.ParseKind(q); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown kind " + q})
			return
		}
	}

	items, err := s.items(kind)
	if err != nil {
		log.Printf("Error loading %s items: %v", kind, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	ranked := ranking.Rank(items, s.now())
	feed := make([]feedEntry, len(ranked))
	for i, scored := range ranked {
		it := scored.Item
		feed[i] = feedEntry{
			Kind:      kind,
			ID:        it.ID,
			Title:     it.Title,
			Category:  ranking.PrimaryCategory(it),
			ImageURL:  it.ImageURL,
			Ranking:   scored.Breakdown,
			Headlines: it.Headlines(s.opts.HeadlineLimit),
		}
	}
	writeJSON(w, http.StatusOK, feed)
}

type itemResponse struct {
	*content.Item
	Headlines []content.Headline `json:"headlines"`
}

func (s *Server) handleAPIItem(w http.ResponseWriter, r *http.Request) {
	it, status := s.lookup(r)
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Item: it, Headlines: it.Headlines(s.opts.HeadlineLimit)})
}

type suggestionEntry struct {
	Kind     content.ItemKind `json:"kind"`
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Category string           `json:"category,omitempty"`
	Score    float64          `json:"score"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	it, status := s.lookup(r)
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	suggestions := s.suggestionsFor(it)
	out := make([]suggestionEntry, len(suggestions))
	for i, sg := range suggestions {
		out[i] = suggestionEntry{
			Kind:     sg.Item.Kind,
			ID:       sg.Item.ID,
			Title:    sg.Item.Title,
			Category: ranking.PrimaryCategory(sg.Item),
			Score:    sg.Score,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type searchResult struct {
	Kind     content.ItemKind `json:"kind"`
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Category string           `json:"category,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	for _, kind := range content.Kinds {
		if _, err := s.items(kind); err != nil {
			log.Printf("Error loading %s items: %v", kind, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	matches := s.pool.Search(r.URL.Query().Get("q"))
	out := make([]searchResult, len(matches))
	for i, it := range matches {
		out[i] = searchResult{
			Kind:     it.Kind,
			ID:       it.ID,
			Title:    it.Title,
			Category: ranking.PrimaryCategory(it),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(htmlPolicy.SanitizeBytes(buf.Bytes())) //nolint: gosec
}

func lastTouched(it *content.Item) int64 {
	if it.UpdatedAt > 0 {
		return it.UpdatedAt
	}
	return it.CreatedAt
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, pool *ranking.Pool, opts Options, port int) error {
	srv, err := New(db, pool, opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
