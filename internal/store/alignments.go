package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddAlignments persists one cluster assignment per fact inside a single
// transaction: either every alignment commits or none do. The UNIQUE
// constraint on fact_id keeps assignments write-once even if two
// clustering runs race past the lease.
func (s *SQLiteStore) AddAlignments(ctx context.Context, alignments []*Alignment) error {
	if len(alignments) == 0 {
		return nil
	}
	for _, a := range alignments {
		if a.FactID <= 0 {
			return fmt.Errorf("alignment fact_id is required")
		}
		if a.ClusterID < ClusterNoise {
			return fmt.Errorf("invalid cluster id %d for fact %d", a.ClusterID, a.FactID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning alignment transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alignments (fact_id, cluster_id, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing alignment insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alignments {
		if _, err := stmt.ExecContext(ctx, a.FactID, a.ClusterID, now); err != nil {
			return fmt.Errorf("inserting alignment for fact %d: %w", a.FactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alignments: %w", err)
	}
	return nil
}

// GetAlignmentByFactID retrieves the alignment for a fact.
// Returns (nil, nil) when the fact has not been clustered.
func (s *SQLiteStore) GetAlignmentByFactID(ctx context.Context, factID int64) (*Alignment, error) {
	a := &Alignment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fact_id, cluster_id, created_at FROM alignments WHERE fact_id = ?`,
		factID,
	).Scan(&a.ID, &a.FactID, &a.ClusterID, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting alignment for fact %d: %w", factID, err)
	}
	return a, nil
}
