package sqlite

import (
	"context"
	"time"

	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

// GrantStore implements ports.GrantStore using SQLite.
type GrantStore struct {
	db *DB
}

// NewGrantStore creates a new SQLite grant store.
func NewGrantStore(db *DB) *GrantStore {
	return &GrantStore{db: db}
}

// Create stores a new add-on grant.
func (s *GrantStore) Create(ctx context.Context, g plan.AddOnGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addon_grants (id, owner, resource_type, quantity, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.Owner, g.ResourceType, g.Quantity, g.ExpiresAt, g.Active, g.CreatedAt)
	return err
}

// ListActive returns grants for an owner that are active and unexpired
// at the given instant.
func (s *GrantStore) ListActive(ctx context.Context, owner string, now time.Time) ([]plan.AddOnGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, resource_type, quantity, expires_at, active, created_at
		FROM addon_grants
		WHERE owner = ? AND active = 1 AND expires_at > ?
		ORDER BY created_at, id
	`, owner, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []plan.AddOnGrant
	for rows.Next() {
		var g plan.AddOnGrant
		if err := rows.Scan(&g.ID, &g.Owner, &g.ResourceType, &g.Quantity,
			&g.ExpiresAt, &g.Active, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Deactivate marks a grant inactive.
func (s *GrantStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE addon_grants SET active = 0 WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Ensure interface compliance.
var _ ports.GrantStore = (*GrantStore)(nil)
