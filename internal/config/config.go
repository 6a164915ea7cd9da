package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources Sources `yaml:"sources"`
	Ranking Ranking `yaml:"ranking"`
	Fetch   Fetch   `yaml:"fetch"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed     `yaml:"feeds"`
	APIs  APIsConfig `yaml:"apis"`
}

// Feed maps one RSS/Atom feed onto a story or theme document. When ID is
// empty the document ID is derived from the feed URL.
type Feed struct {
	URL      string   `yaml:"url"`
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Query      string `yaml:"query"`
	Kind       string `yaml:"kind"`
	DocumentID string `yaml:"document_id"`
	Title      string `yaml:"title"`
}

type Ranking struct {
	SuggestionLimit int `yaml:"suggestion_limit"`
	HeadlineLimit   int `yaml:"headline_limit"`
}

type Fetch struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	MaxPerRun      int  `yaml:"max_per_run"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Logging.Level is DEBUG, INFO, WARNING or ERROR. Progress lines are
// written at INFO and below; DEBUG also tags them with file:line.
type Logging struct {
	Level string `yaml:"level"`
}

var logLevels = map[string]int{
	"DEBUG":   0,
	"INFO":    1,
	"WARN":    2,
	"WARNING": 2,
	"ERROR":   3,
}

// Progress reports whether progress lines should be written.
func (l Logging) Progress() bool {
	return logLevels[l.Level] <= logLevels["INFO"]
}

// Debug reports whether log lines carry their source location.
func (l Logging) Debug() bool {
	return l.Level == "DEBUG"
}

// ConfigDir returns the XDG config directory for storyline.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "storyline")
}

// DataDir returns the XDG data directory for storyline.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "storyline")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/storyline/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'storyline init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					Enabled:    false,
					APIKeyEnv:  "NEWSAPI_KEY",
					Kind:       "story",
					DocumentID: "newsapi",
					Title:      "Wire updates",
				},
			},
		},
		Ranking: Ranking{
			SuggestionLimit: 5,
			HeadlineLimit:   2,
		},
		Fetch: Fetch{
			Enabled:        true,
			TimeoutSeconds: 15,
			MaxPerRun:      50,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Logging.Level = strings.ToUpper(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if _, ok := logLevels[cfg.Logging.Level]; !ok {
		return nil, fmt.Errorf("parsing config: unknown logging level %q", cfg.Logging.Level)
	}

	for i, f := range cfg.Sources.Feeds {
		if f.URL == "" {
			return nil, fmt.Errorf("parsing config: feed %d has no url", i)
		}
		if f.Kind == "" {
			cfg.Sources.Feeds[i].Kind = "story"
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// FetchTimeout returns the per-request timeout for source enrichment.
func (c *Config) FetchTimeout() time.Duration {
	if c.Fetch.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
