package pipeline

import (
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/Storyline/internal/collect"
	"github.com/TobiSchelling/Storyline/internal/config"
	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
	"github.com/TobiSchelling/Storyline/internal/fetch"
	"github.com/TobiSchelling/Storyline/internal/ranking"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Pipeline orchestrates collect -> enrich -> normalize -> rank.
type Pipeline struct {
	cfg  *config.Config
	db   *database.DB
	pool *ranking.Pool
	now  func() time.Time

	report database.RunReport
}

// New creates a new pipeline. pool may be nil; when set it is refilled by
// the normalize step.
func New(cfg *config.Config, db *database.DB, pool *ranking.Pool) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		db:   db,
		pool: pool,
		now:  time.Now,
	}
}

// StepCount is the number of steps Run executes.
const StepCount = 4

// Run executes the full pipeline.
func (p *Pipeline) Run(daysBack int) *Result {
	r := &Result{}
	p.report = database.RunReport{}

	// Step 1: Collect
	r.Steps = append(r.Steps, p.runCollect(daysBack))

	// Step 2: Enrich sources
	r.Steps = append(r.Steps, p.runEnrich())

	// Step 3: Normalize
	step := p.runNormalize()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 4: Rank
	r.Steps = append(r.Steps, p.runRank())

	if _, err := p.db.InsertReport(p.report); err != nil {
		log.Printf("Failed to record run report: %v", err)
	}
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	newsapi := "disabled"
	if p.cfg.Sources.APIs.NewsAPI.Enabled {
		newsapi = "enabled"
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("[dry-run] %d feeds configured, NewsAPI %s", len(p.cfg.Sources.Feeds), newsapi),
	})

	if !p.cfg.Fetch.Enabled {
		r.Steps = append(r.Steps, StepResult{Name: "Enrich", Summary: "[dry-run] Enrichment disabled"})
	} else {
		pending, err := fetch.NewSourceEnricher(p.db, p.cfg.FetchTimeout(), p.cfg.Fetch.MaxPerRun).Pending()
		r.Steps = append(r.Steps, StepResult{
			Name:    "Enrich",
			Summary: fmt.Sprintf("[dry-run] %d sources missing metadata", pending),
			Err:     err,
		})
	}

	stats, err := p.db.GetStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Normalize", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Normalize",
		Summary: fmt.Sprintf("[dry-run] %d stories and %d themes with %d timeline entries", stats.Stories, stats.Themes, stats.Events),
	})

	last, _ := p.db.GetLastRankedAt()
	if last == "" {
		last = "never"
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Rank",
		Summary: fmt.Sprintf("[dry-run] Would rank %d items (last ranked: %s)", stats.Stories+stats.Themes, last),
	})

	return r
}

func (p *Pipeline) runCollect(daysBack int) StepResult {
	log.Printf("Step 1/%d: Collecting timeline entries...", StepCount)
	collector := collect.NewCollector(p.cfg, p.db, daysBack)
	result := collector.Collect()
	p.report.EventsAdded = result.NewEvents
	return StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Added %d events to %d documents (%d found, %d duplicates)",
			result.NewEvents, len(result.Documents), result.TotalFound, result.Duplicates),
	}
}

func (p *Pipeline) runEnrich() StepResult {
	log.Printf("Step 2/%d: Enriching sources...", StepCount)
	if !p.cfg.Fetch.Enabled {
		return StepResult{Name: "Enrich", Summary: "Enrichment disabled"}
	}
	enricher := fetch.NewSourceEnricher(p.db, p.cfg.FetchTimeout(), p.cfg.Fetch.MaxPerRun)
	result := enricher.EnrichAll()
	p.report.SourcesEnriched = result.Enriched
	return StepResult{
		Name: "Enrich",
		Summary: fmt.Sprintf("Enriched %d sources (%d fetched, %d cached, %d failed)",
			result.Enriched, result.Fetched, result.Cached, result.Failed),
	}
}

func (p *Pipeline) runNormalize() StepResult {
	log.Printf("Step 3/%d: Normalizing documents...", StepCount)
	counts := make(map[content.ItemKind]int)
	dropped := 0
	for _, kind := range content.Kinds {
		rev, err := p.db.Revision(string(kind))
		if err != nil {
			return StepResult{Name: "Normalize", Err: err}
		}
		items, err := LoadItems(p.db, kind)
		if err != nil {
			return StepResult{Name: "Normalize", Err: err}
		}
		for _, it := range items {
			if n := len(it.Dropped); n > 0 {
				dropped += n
				log.Printf("Normalized %s/%s: dropped %d elements", kind, it.ID, n)
			}
		}
		counts[kind] = len(items)
		if p.pool != nil {
			p.pool.Replace(kind, items, rev)
		}
	}
	p.report.Dropped = dropped
	return StepResult{
		Name: "Normalize",
		Summary: fmt.Sprintf("Normalized %d stories and %d themes (%d elements dropped)",
			counts[content.Story], counts[content.Theme], dropped),
	}
}

func (p *Pipeline) runRank() StepResult {
	log.Printf("Step 4/%d: Ranking...", StepCount)
	total := 0
	for _, kind := range content.Kinds {
		ranked, err := RankKind(p.db, kind, p.now())
		if err != nil {
			return StepResult{Name: "Rank", Err: err}
		}
		total += len(ranked)
	}
	p.report.ItemsRanked = total
	return StepResult{
		Name:    "Rank",
		Summary: fmt.Sprintf("Ranked %d items", total),
	}
}

// LoadItems reads and normalizes every stored document of a kind. The
// storage key is authoritative for an item's ID.
func LoadItems(db *database.DB, kind content.ItemKind) ([]*content.Item, error) {
	docs, err := db.ListDocuments(string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %s documents: %w", kind, err)
	}
	raws := make([]content.Record, len(docs))
	for i, doc := range docs {
		raws[i] = doc.Body
	}
	items := content.NormalizeItems(kind, raws)
	for i, it := range items {
		it.ID = docs[i].ID
	}
	return items, nil
}

// LoadItem reads and normalizes one document, or returns nil if missing.
func LoadItem(db *database.DB, kind content.ItemKind, id string) (*content.Item, error) {
	doc, err := db.GetDocument(string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", kind, id, err)
	}
	if doc == nil {
		return nil, nil
	}
	it := content.NormalizeItem(kind, doc.Body)
	it.ID = doc.ID
	return it, nil
}

// RankKind ranks every item of a kind at now and stores the snapshot.
func RankKind(db *database.DB, kind content.ItemKind, now time.Time) ([]ranking.Scored, error) {
	items, err := LoadItems(db, kind)
	if err != nil {
		return nil, err
	}
	ranked := ranking.Rank(items, now)

	rankedAt := now.UTC().Format(time.RFC3339)
	snaps := make([]database.RankSnapshot, len(ranked))
	for i, s := range ranked {
		snaps[i] = database.RankSnapshot{
			Kind:     string(kind),
			ID:       s.Item.ID,
			Position: i,
			Score:    s.Final,
			Recency:  s.Recency,
			Velocity: s.Velocity,
			RankedAt: rankedAt,
		}
	}
	if err := db.ReplaceRankSnapshots(string(kind), snaps); err != nil {
		return nil, fmt.Errorf("storing %s ranking: %w", kind, err)
	}
	return ranked, nil
}
