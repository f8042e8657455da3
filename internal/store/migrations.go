package store

import "fmt"

// migrate creates all tables if they don't exist and seeds metadata.
// Safe to run on every open.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			url        TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS articles (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			title        TEXT NOT NULL,
			body         TEXT,
			url          TEXT NOT NULL UNIQUE,
			published_at DATETIME NOT NULL,
			source_id    INTEGER NOT NULL REFERENCES sources(id),
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS facts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id  INTEGER NOT NULL REFERENCES articles(id),
			text        TEXT NOT NULL,
			source_text TEXT,
			confidence  REAL DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS alignments (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			fact_id    INTEGER NOT NULL UNIQUE REFERENCES facts(id),
			cluster_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS leases (
			name       TEXT PRIMARY KEY,
			holder     TEXT NOT NULL,
			expires_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_article ON facts(article_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', '1')
		 ON CONFLICT(key) DO NOTHING`); err != nil {
		return fmt.Errorf("seeding schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migrations: %w", err)
	}
	return nil
}
