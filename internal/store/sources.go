package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertSource returns the source with the given name, creating it if
// absent. Safe to race from concurrent consumers: if another worker wins
// the insert, the uniqueness conflict is detected and the winning row is
// re-read instead of failing the operation.
func (s *SQLiteStore) UpsertSource(ctx context.Context, name, url string) (*Source, error) {
	if name == "" {
		return nil, fmt.Errorf("source name is required")
	}

	existing, err := s.GetSourceByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, url, created_at) VALUES (?, ?, ?)`,
		name, url, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race; the committed row is authoritative.
			winner, rerr := s.GetSourceByName(ctx, name)
			if rerr != nil {
				return nil, rerr
			}
			if winner == nil {
				return nil, fmt.Errorf("source %q conflicted but not found on re-read", name)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("inserting source %q: %w", name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting last insert id: %w", err)
	}
	return &Source{ID: id, Name: name, URL: url, CreatedAt: now}, nil
}

// GetSourceByName retrieves a source by its unique name.
// Returns (nil, nil) when no such source exists.
func (s *SQLiteStore) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	src := &Source{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, created_at FROM sources WHERE name = ?`, name,
	).Scan(&src.ID, &src.Name, &src.URL, &src.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting source %q: %w", name, err)
	}
	return src, nil
}
