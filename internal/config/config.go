// Package config resolves pipeline configuration from a YAML file,
// environment variables, and built-in defaults. Precedence: environment
// over file over default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crosscheck-news/crosscheck/internal/cluster"
	"github.com/crosscheck-news/crosscheck/internal/consume"
	"github.com/crosscheck-news/crosscheck/internal/embed"
	"github.com/crosscheck-news/crosscheck/internal/feed"
	"github.com/crosscheck-news/crosscheck/internal/store"
)

// DefaultQueuePath is the default work queue directory.
const DefaultQueuePath = "~/.crosscheck/queue"

// Config is the resolved pipeline configuration.
type Config struct {
	DBPath         string             `yaml:"db_path"`
	QueuePath      string             `yaml:"queue_path"`
	EnabledSources []string           `yaml:"enabled_sources"`
	Embed          embed.Config       `yaml:"embed"`
	NewsAPI        feed.NewsAPIConfig `yaml:"newsapi"`
	Consumer       consume.Config     `yaml:"consumer"`
	Cluster        cluster.Config     `yaml:"cluster"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crosscheck", "config.yaml")
}

// Load resolves configuration. A missing config file is not an error;
// defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg.DBPath, "CROSSCHECK_DB")
	applyEnv(&cfg.QueuePath, "CROSSCHECK_QUEUE")
	applyEnv(&cfg.Embed.Endpoint, "CROSSCHECK_EMBED_ENDPOINT")
	applyEnv(&cfg.Embed.Model, "CROSSCHECK_EMBED_MODEL")
	applyEnv(&cfg.Embed.APIKey, "CROSSCHECK_EMBED_API_KEY")
	applyEnv(&cfg.NewsAPI.APIKey, "NEWS_API_KEY")
	applyEnv(&cfg.NewsAPI.Endpoint, "NEWSAPI_ENDPOINT")
	applyEnv(&cfg.NewsAPI.Query, "NEWSAPI_QUERY")

	if v := strings.TrimSpace(os.Getenv("CROSSCHECK_SOURCES")); v != "" {
		var names []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.EnabledSources = names
	}

	cfg.DBPath = expandUserPath(cfg.DBPath)
	cfg.QueuePath = expandUserPath(cfg.QueuePath)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DBPath:         store.DefaultDBPath,
		QueuePath:      DefaultQueuePath,
		EnabledSources: []string{"newsapi"},
		Embed: embed.Config{
			Endpoint: "http://localhost:11434/v1/embeddings",
			Model:    "all-minilm",
		},
	}
}

func applyEnv(dst *string, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = v
	}
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
