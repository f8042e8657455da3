package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseHeld is returned by AcquireLease when another holder owns an
// unexpired lease.
var ErrLeaseHeld = errors.New("lease held by another holder")

// AcquireLease takes the named lease for the given holder. An expired
// lease (stale from a crashed run) is taken over; a live lease owned by
// someone else returns ErrLeaseHeld. Re-acquiring one's own lease renews
// it.
func (s *SQLiteStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning lease transaction: %w", err)
	}
	defer tx.Rollback()

	var curHolder string
	var curExpires time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM leases WHERE name = ?`, name,
	).Scan(&curHolder, &curExpires)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)`,
			name, holder, expires); err != nil {
			if isUniqueViolation(err) {
				return ErrLeaseHeld
			}
			return fmt.Errorf("inserting lease %q: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("reading lease %q: %w", name, err)
	case curHolder != holder && curExpires.After(now):
		return ErrLeaseHeld
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE leases SET holder = ?, expires_at = ? WHERE name = ?`,
			holder, expires, name); err != nil {
			return fmt.Errorf("updating lease %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lease %q: %w", name, err)
	}
	return nil
}

// ReleaseLease drops the named lease if still owned by holder. Releasing
// a lease that expired and was taken over is a no-op.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE name = ? AND holder = ?`, name, holder); err != nil {
		return fmt.Errorf("releasing lease %q: %w", name, err)
	}
	return nil
}
