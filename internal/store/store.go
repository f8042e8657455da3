// Package store provides the SQLite storage layer for crosscheck.
//
// All pipeline state lives in a single SQLite database file:
// - Sources and deduplicated articles
// - Facts extracted from article bodies (written by the upstream extractor)
// - Alignments (write-once cluster assignments for facts)
// - The clustering lease used to keep the engine single-writer
//
// The database is the arbiter of every uniqueness invariant in the
// pipeline; no identity is cached in memory across workers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.crosscheck/crosscheck.db"

// ClusterNoise is the sentinel cluster label for facts that do not belong
// to any dense group. All other labels are non-negative.
const ClusterNoise int64 = -1

// Source is a publisher identity, deduplicated by name.
// Never mutated or deleted once created.
type Source struct {
	ID        int64
	Name      string
	URL       string
	CreatedAt time.Time
}

// Article is one ingested article, deduplicated by URL.
// Immutable once stored.
type Article struct {
	ID          int64
	Title       string
	Body        string
	URL         string
	PublishedAt time.Time
	SourceID    int64
	CreatedAt   time.Time
}

// Fact is an atomic claim extracted from an article body.
type Fact struct {
	ID         int64
	ArticleID  int64
	Text       string
	SourceText string
	Confidence float64
	CreatedAt  time.Time
}

// Alignment is the persisted cluster assignment for exactly one fact.
// A fact receives at most one alignment, ever.
type Alignment struct {
	ID        int64
	FactID    int64
	ClusterID int64
	CreatedAt time.Time
}

// Stats holds row counts for observability.
type Stats struct {
	Sources    int64
	Articles   int64
	Facts      int64
	Alignments int64
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the storage interface for the ingestion and clustering
// pipeline.
type Store interface {
	// Sources
	UpsertSource(ctx context.Context, name, url string) (*Source, error)
	GetSourceByName(ctx context.Context, name string) (*Source, error)

	// Articles
	InsertArticle(ctx context.Context, a *Article) (int64, bool, error)
	GetArticleByURL(ctx context.Context, url string) (*Article, error)

	// Facts
	AddFact(ctx context.Context, f *Fact) (int64, error)
	GetFact(ctx context.Context, id int64) (*Fact, error)

	// Clustering
	UnclusteredFacts(ctx context.Context) ([]*Fact, error)
	AddAlignments(ctx context.Context, alignments []*Alignment) error
	GetAlignmentByFactID(ctx context.Context, factID int64) (*Alignment, error)

	// Leases
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, name, holder string) error

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A pooled ":memory:" DSN would give every connection its own empty
	// database, so pin it to a single connection.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// GetDB exposes the underlying handle for callers that need raw SQL
// (tests, ad-hoc inspection).
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts for every pipeline table.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"sources", &st.Sources},
		{"articles", &st.Articles},
		{"facts", &st.Facts},
		{"alignments", &st.Alignments},
	} {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.table, err)
		}
	}
	return st, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. Concurrent inserts racing on a dedup key surface this; callers
// recover by re-reading the winning row.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
