package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/Storyline/internal/collect"
	"github.com/TobiSchelling/Storyline/internal/config"
	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
	"github.com/TobiSchelling/Storyline/internal/pipeline"
	"github.com/TobiSchelling/Storyline/internal/ranking"
	"github.com/TobiSchelling/Storyline/internal/server"
	"github.com/TobiSchelling/Storyline/internal/timestamp"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "storyline",
	Short:   "Ranked story and theme timelines",
	Long:    "Storyline collects news into story and theme timelines, normalizes them, and ranks them for reading.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configureLogging(verbose, true)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		configureLogging(verbose || cfg.Logging.Debug(), verbose || cfg.Logging.Progress())
		return nil
	},
}

// configureLogging sets the standard logger's flags and silences progress
// lines when show is false.
func configureLogging(debug, show bool) {
	flags := log.LstdFlags
	if debug {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)
	if show {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("storyline", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/storyline/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, NewsAPI, and ranking limits.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		schema, err := db.SchemaVersion()
		if err != nil {
			return err
		}

		now := time.Now()
		fmt.Printf("Database: %s (schema v%d)\n\n", db.Path(), schema)
		fmt.Println("Documents:")
		fmt.Printf("  Stories: %s\n", humanize.Comma(int64(stats.Stories)))
		fmt.Printf("  Themes: %s\n", humanize.Comma(int64(stats.Themes)))
		fmt.Printf("  Timeline entries: %s\n", humanize.Comma(int64(stats.Events)))
		fmt.Println("\nSources:")
		fmt.Printf("  Cached metadata: %d\n", stats.CachedSources)
		fmt.Printf("  Failed fetches: %d\n", stats.FailedSources)
		fmt.Println("\nRanking:")
		fmt.Printf("  Ranked items: %d\n", stats.RankedItems)
		lastRanked, _ := db.GetLastRankedAt()
		fmt.Printf("  Last ranked: %s\n", ago(lastRanked, now))
		for _, kind := range content.Kinds {
			snaps, err := db.GetRankSnapshots(string(kind))
			if err != nil {
				return fmt.Errorf("reading %s ranking: %w", kind, err)
			}
			if len(snaps) > 0 {
				fmt.Printf("  Top %s: %s (%.3f)\n", kind, snaps[0].ID, snaps[0].Score)
			}
		}
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		if report, _ := db.GetLastReport(); report != nil {
			generated := ""
			if report.GeneratedAt != nil {
				generated = *report.GeneratedAt
			}
			fmt.Printf("  Last run: %s (%d events added, %d sources enriched, %d dropped, %d ranked)\n",
				ago(generated, now), report.EventsAdded, report.SourcesEnriched, report.Dropped, report.ItemsRanked)
		}
		return nil
	},
}

// --- import command ---

var importKind string

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import stories and themes from a JSON export",
	Long: "Import a JSON export: either an array of records (stored as --kind) or an object\n" +
		"with \"stories\" and \"themes\" arrays. Records are stored as-is and normalized on read.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := content.ParseKind(importKind)
		if !ok {
			return fmt.Errorf("unknown kind: %s", importKind)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading export: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := collect.ImportExport(db, data, kind)
		if err != nil {
			return err
		}

		fmt.Println("Import complete:")
		fmt.Printf("  Stories: %d\n", result.Imported[content.Story])
		fmt.Printf("  Themes: %d\n", result.Imported[content.Theme])
		if result.Skipped > 0 {
			fmt.Printf("  Skipped (no id): %d\n", result.Skipped)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importKind, "kind", "story", "Kind for records in a bare array export (story|theme)")
}

// --- delete command ---

var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <id>",
	Short: "Delete a stored story or theme",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := content.ParseKind(args[0])
		if !ok {
			return fmt.Errorf("unknown kind: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := db.DeleteDocument(string(kind), args[1])
		if err != nil {
			return fmt.Errorf("deleting %s %s: %w", kind, args[1], err)
		}
		if !deleted {
			return fmt.Errorf("%s %s not found", kind, args[1])
		}
		fmt.Printf("Deleted %s %s. Run 'storyline rank' to refresh the stored ranking.\n", kind, args[1])
		return nil
	},
}

// --- collect command ---

var collectDaysBack int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect timeline entries from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting timeline entries from sources...")

		collector := collect.NewCollector(cfg, db, collectDaysBack)
		result := collector.Collect()

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New events: %d\n", result.NewEvents)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

		if len(result.Documents) > 0 {
			fmt.Println("\nEvents by document:")
			// Sort documents by count descending
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Documents {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectDaysBack, "days-back", 1, "Lookback window (days)")
}

// --- run command ---

var (
	dryRun   bool
	daysBack int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> enrich -> normalize -> rank",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db, nil)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun()
		} else {
			result = pipe.Run(daysBack)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, pipeline.StepCount, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'storyline serve' to browse the feed.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().IntVar(&daysBack, "days-back", 1, "Lookback window (days)")
}

// --- rank command ---

var rankKind string

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank stories and themes and store the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := content.Kinds
		if rankKind != "" {
			kind, ok := content.ParseKind(rankKind)
			if !ok {
				return fmt.Errorf("unknown kind: %s", rankKind)
			}
			kinds = []content.ItemKind{kind}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		now := time.Now()
		for _, kind := range kinds {
			ranked, err := pipeline.RankKind(db, kind, now)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s (%d):\n", kind, len(ranked))
			for i, s := range ranked {
				fmt.Printf("  %2d. %.3f  %s  [%s]\n", i+1, s.Final, displayTitle(s.Item), s.Item.ID)
				if verbose {
					fmt.Printf("        recency %.2f, velocity %.2f\n", s.Recency, s.Velocity)
				}
			}
		}
		return nil
	},
}

func init() {
	rankCmd.Flags().StringVar(&rankKind, "kind", "", "Only rank this kind (story|theme)")
}

// --- show command ---

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <kind> <id>",
	Short: "Show a normalized story or theme",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		it, err := loadItem(db, args[0], args[1])
		if err != nil {
			return err
		}

		if showJSON {
			out, err := json.MarshalIndent(it, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding item: %w", err)
			}
			fmt.Println(string(out))
			return nil
		}

		now := time.Now()
		fmt.Printf("%s [%s/%s]\n", displayTitle(it), it.Kind, it.ID)
		if category := ranking.PrimaryCategory(it); category != "" {
			fmt.Printf("  Category: %s\n", category)
		}
		if it.CreatedAt > 0 {
			fmt.Printf("  Created: %s (%s)\n", timestamp.Label(it.CreatedAt), timestamp.Relative(it.CreatedAt, now))
		}
		b := ranking.ScoreContentBreakdown(it, now)
		fmt.Printf("  Score: %.3f (recency %.2f, velocity %.2f)\n", b.Final, b.Recency, b.Velocity)
		fmt.Printf("  Timeline: %d blocks, %d events, %d phases\n", len(it.Timeline), len(it.Events()), len(it.Phases))

		if headlines := it.Headlines(cfg.Ranking.HeadlineLimit); len(headlines) > 0 {
			fmt.Println("\nLatest:")
			for _, h := range headlines {
				fmt.Printf("  %s  %s\n", h.Label, h.Title)
			}
		}

		if len(it.Dropped) > 0 {
			fmt.Printf("\nDropped during normalization (%d):\n", len(it.Dropped))
			for _, d := range it.Dropped {
				fmt.Printf("  %s\n", d)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the normalized item as JSON")
}

// --- suggest command ---

var suggestCmd = &cobra.Command{
	Use:   "suggest <kind> <id>",
	Short: "List what to read after a story or theme",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		it, err := loadItem(db, args[0], args[1])
		if err != nil {
			return err
		}
		pool, err := pipeline.LoadItems(db, it.Kind)
		if err != nil {
			return err
		}

		suggestions := ranking.Suggest(it, pool, cfg.Ranking.SuggestionLimit, time.Now())
		if len(suggestions) == 0 {
			fmt.Println("No suggestions.")
			return nil
		}

		fmt.Printf("After %q:\n", displayTitle(it))
		for i, s := range suggestions {
			fmt.Printf("  %d. %5.2f  %s  [%s]\n", i+1, s.Score, displayTitle(s.Item), s.Item.ID)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port > 0 {
			port = cfg.Server.Port
		}

		opts := server.Options{
			SuggestionLimit: cfg.Ranking.SuggestionLimit,
			HeadlineLimit:   cfg.Ranking.HeadlineLimit,
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, ranking.NewPool(), opts, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func loadItem(db *database.DB, kindArg, id string) (*content.Item, error) {
	kind, ok := content.ParseKind(kindArg)
	if !ok {
		return nil, fmt.Errorf("unknown kind: %s", kindArg)
	}
	it, err := pipeline.LoadItem(db, kind, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%s %s not found", kind, id)
	}
	return it, nil
}

func displayTitle(it *content.Item) string {
	if it.Title == "" {
		return "(untitled)"
	}
	return it.Title
}

// ago renders a stored timestamp relative to now, or "never".
func ago(stored string, now time.Time) string {
	ms := timestamp.CoerceMs(stored)
	if ms <= 0 {
		return "never"
	}
	return timestamp.Relative(ms, now)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "storyline.db")
	return database.Open(dbPath)
}
