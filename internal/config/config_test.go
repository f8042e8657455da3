package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath == "" {
		t.Error("expected default db path")
	}
	if cfg.QueuePath == "" {
		t.Error("expected default queue path")
	}
	if len(cfg.EnabledSources) != 1 || cfg.EnabledSources[0] != "newsapi" {
		t.Errorf("EnabledSources = %v, want [newsapi]", cfg.EnabledSources)
	}
	if cfg.Embed.Model != "all-minilm" {
		t.Errorf("Embed.Model = %q", cfg.Embed.Model)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/test.db
enabled_sources: [newsapi, reuters]
embed:
  model: nomic-embed-text
cluster:
  epsilon: 0.3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if len(cfg.EnabledSources) != 2 {
		t.Errorf("EnabledSources = %v", cfg.EnabledSources)
	}
	if cfg.Embed.Model != "nomic-embed-text" {
		t.Errorf("Embed.Model = %q", cfg.Embed.Model)
	}
	if cfg.Cluster.Epsilon != 0.3 {
		t.Errorf("Cluster.Epsilon = %v", cfg.Cluster.Epsilon)
	}
	// Unset file keys keep their defaults.
	if cfg.Embed.Endpoint == "" {
		t.Error("expected default embed endpoint to survive partial file")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "db_path: /tmp/from-file.db\n")
	t.Setenv("CROSSCHECK_DB", "/tmp/from-env.db")
	t.Setenv("NEWS_API_KEY", "secret-key")
	t.Setenv("CROSSCHECK_EMBED_ENDPOINT", "http://embed.internal/v1/embeddings")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Errorf("DBPath = %q, env must win over file", cfg.DBPath)
	}
	if cfg.NewsAPI.APIKey != "secret-key" {
		t.Errorf("NewsAPI.APIKey = %q", cfg.NewsAPI.APIKey)
	}
	if cfg.Embed.Endpoint != "http://embed.internal/v1/embeddings" {
		t.Errorf("Embed.Endpoint = %q", cfg.Embed.Endpoint)
	}
}

func TestLoadSourcesFromEnv(t *testing.T) {
	t.Setenv("CROSSCHECK_SOURCES", " newsapi , reuters ,")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"newsapi", "reuters"}
	if len(cfg.EnabledSources) != len(want) {
		t.Fatalf("EnabledSources = %v, want %v", cfg.EnabledSources, want)
	}
	for i := range want {
		if cfg.EnabledSources[i] != want[i] {
			t.Errorf("EnabledSources[%d] = %q, want %q", i, cfg.EnabledSources[i], want[i])
		}
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	path := writeConfig(t, "db_path: ~/data/check.db\nqueue_path: ~/data/queue\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, "data", "check.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.QueuePath != filepath.Join(home, "data", "queue") {
		t.Errorf("QueuePath = %q", cfg.QueuePath)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "db_path: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
