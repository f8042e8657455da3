package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddFact inserts a new fact linked to an article. Facts are produced by
// the upstream extraction collaborator; this is its write path.
func (s *SQLiteStore) AddFact(ctx context.Context, f *Fact) (int64, error) {
	if f.ArticleID <= 0 {
		return 0, fmt.Errorf("fact article_id is required")
	}
	if f.Text == "" {
		return 0, fmt.Errorf("fact text is required")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (article_id, text, source_text, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.ArticleID, f.Text, f.SourceText, f.Confidence, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting fact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt = now
	return id, nil
}

// GetFact retrieves a fact by ID.
func (s *SQLiteStore) GetFact(ctx context.Context, id int64) (*Fact, error) {
	f := &Fact{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, article_id, text, COALESCE(source_text, ''), COALESCE(confidence, 0), created_at
		 FROM facts WHERE id = ?`, id,
	).Scan(&f.ID, &f.ArticleID, &f.Text, &f.SourceText, &f.Confidence, &f.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting fact %d: %w", id, err)
	}
	return f, nil
}

// UnclusteredFacts returns every fact with no alignment row, via a left
// anti-join. Ordered by fact id so embedding order matches assignment
// order downstream and repeated runs see the same sequence.
func (s *SQLiteStore) UnclusteredFacts(ctx context.Context) ([]*Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.article_id, f.text, COALESCE(f.source_text, ''), COALESCE(f.confidence, 0), f.created_at
		 FROM facts f
		 LEFT JOIN alignments a ON a.fact_id = f.id
		 WHERE a.id IS NULL
		 ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("querying unclustered facts: %w", err)
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		f := &Fact{}
		if err := rows.Scan(&f.ID, &f.ArticleID, &f.Text, &f.SourceText,
			&f.Confidence, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning unclustered fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
