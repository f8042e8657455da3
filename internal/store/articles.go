package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertArticle stores an article once per unique URL. The second return
// value reports whether a new row was created; re-ingesting an already
// stored URL is a no-op that returns the existing row's id. Concurrent
// inserts racing on the same URL resolve the same way: the loser re-reads
// the winner's row.
func (s *SQLiteStore) InsertArticle(ctx context.Context, a *Article) (int64, bool, error) {
	if a.URL == "" {
		return 0, false, fmt.Errorf("article url is required")
	}
	if a.Title == "" {
		return 0, false, fmt.Errorf("article title is required")
	}
	if a.PublishedAt.IsZero() {
		return 0, false, fmt.Errorf("article published_at is required")
	}
	if a.SourceID <= 0 {
		return 0, false, fmt.Errorf("article source_id is required")
	}

	existing, err := s.GetArticleByURL(ctx, a.URL)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (title, body, url, published_at, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Title, a.Body, a.URL, a.PublishedAt.UTC(), a.SourceID, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			winner, rerr := s.GetArticleByURL(ctx, a.URL)
			if rerr != nil {
				return 0, false, rerr
			}
			if winner == nil {
				return 0, false, fmt.Errorf("article %q conflicted but not found on re-read", a.URL)
			}
			return winner.ID, false, nil
		}
		return 0, false, fmt.Errorf("inserting article %q: %w", a.URL, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("getting last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return id, true, nil
}

// GetArticleByURL retrieves an article by its unique URL.
// Returns (nil, nil) when no such article exists.
func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*Article, error) {
	a := &Article{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, COALESCE(body, ''), url, published_at, source_id, created_at
		 FROM articles WHERE url = ?`, url,
	).Scan(&a.ID, &a.Title, &a.Body, &a.URL, &a.PublishedAt, &a.SourceID, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting article %q: %w", url, err)
	}
	return a, nil
}
