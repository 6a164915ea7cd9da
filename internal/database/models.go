package database

// Document is a stored story or theme. Body holds the raw, unnormalized
// record exactly as it was imported or collected.
type Document struct {
	Kind      string
	ID        string
	Body      map[string]any
	CreatedAt *string
	UpdatedAt *string
}

// SourceMetadata caches what enrichment extracted from a source link.
type SourceMetadata struct {
	Link        string
	Title       *string
	SiteName    *string
	ImageURL    *string
	PublishedAt *string
	Failed      bool
	FetchedAt   *string
}

// RankSnapshot is one item's position in the last stored ranking.
type RankSnapshot struct {
	Kind     string
	ID       string
	Position int
	Score    float64
	Recency  float64
	Velocity float64
	RankedAt string
}

// RunReport holds metadata about a pipeline run.
type RunReport struct {
	ID              int64
	EventsAdded     int
	SourcesEnriched int
	Dropped         int
	ItemsRanked     int
	GeneratedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Stories       int
	Themes        int
	Events        int
	CachedSources int
	FailedSources int
	RankedItems   int
	Runs          int
}
