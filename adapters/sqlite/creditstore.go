package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/domain/credit"
	"github.com/plutusfin/ledger/ports"
)

// CreditStore implements ports.CreditStore using SQLite.
//
// Consume runs as one transaction: snapshot, pure FIFO plan, then
// conditional `WHERE used = 0` flips. A zero-row flip means another
// consume won the race; the whole transaction rolls back and the caller
// sees ports.ErrConflict. A shortfall rolls back with
// credit.ErrInsufficientCredits. Partial debits are never visible.
type CreditStore struct {
	db    *DB
	idGen ports.IDGenerator
}

// NewCreditStore creates a new SQLite credit store.
// idGen supplies IDs for the sibling records created by splits.
func NewCreditStore(db *DB, idGen ports.IDGenerator) *CreditStore {
	return &CreditStore{db: db, idGen: idGen}
}

// Grant inserts a new unused credit record (pure append).
func (s *CreditStore) Grant(ctx context.Context, c credit.Credit) error {
	if !c.Amount.IsPositive() {
		return credit.ErrNonPositiveAmount
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bonus_credits (id, owner, amount, source, referral_id, created_at, expires_at, used, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL)
	`, c.ID, c.Owner, c.Amount.String(), c.Source, nullString(c.ReferralID), c.CreatedAt, nullTimePtr(c.ExpiresAt))
	return err
}

// Available sums unused, unexpired credit amounts for an owner.
// Summation happens in Go so decimal amounts stay exact.
func (s *CreditStore) Available(ctx context.Context, owner string, now time.Time) (decimal.Decimal, error) {
	credits, err := s.eligible(ctx, s.db.DB, owner, now)
	if err != nil {
		return decimal.Zero, err
	}
	return credit.AvailableTotal(credits, now), nil
}

// Consume debits amount oldest-first, splitting the boundary record.
func (s *CreditStore) Consume(ctx context.Context, owner string, amount decimal.Decimal, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	credits, err := s.eligible(ctx, tx, owner, now)
	if err != nil {
		return err
	}

	plan, err := credit.PlanConsumption(credits, amount, now)
	if err != nil {
		return err
	}

	for _, id := range plan.FullUse {
		if err := s.markUsed(ctx, tx, id, now); err != nil {
			return err
		}
	}

	if sp := plan.Split; sp != nil {
		var original credit.Credit
		for _, c := range credits {
			if c.ID == sp.CreditID {
				original = c
				break
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bonus_credits
			SET amount = ?, used = 1, used_at = ?
			WHERE id = ? AND used = 0 AND amount = ?
		`, sp.UsedPortion.String(), now, sp.CreditID, original.Amount.String())
		if err != nil {
			return fmt.Errorf("split credit %s: %w", sp.CreditID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ports.ErrConflict
		}

		// Sibling carries the remainder with the original's metadata, so
		// the union of record amounts stays equal to the grant total.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bonus_credits (id, owner, amount, source, referral_id, created_at, expires_at, used, used_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL)
		`, s.idGen.New(), owner, sp.Remainder.String(), original.Source,
			nullString(original.ReferralID), original.CreatedAt, nullTimePtr(original.ExpiresAt))
		if err != nil {
			return fmt.Errorf("insert split remainder: %w", err)
		}
	}

	return tx.Commit()
}

// ListByOwner returns the owner's credit history, oldest first.
func (s *CreditStore) ListByOwner(ctx context.Context, owner string) ([]credit.Credit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, amount, source, referral_id, created_at, expires_at, used, used_at
		FROM bonus_credits
		WHERE owner = ?
		ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredits(rows)
}

func (s *CreditStore) markUsed(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bonus_credits SET used = 1, used_at = ? WHERE id = ? AND used = 0
	`, now, id)
	if err != nil {
		return fmt.Errorf("mark credit %s used: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ports.ErrConflict
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *CreditStore) eligible(ctx context.Context, q querier, owner string, now time.Time) ([]credit.Credit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, owner, amount, source, referral_id, created_at, expires_at, used, used_at
		FROM bonus_credits
		WHERE owner = ? AND used = 0 AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at, id
	`, owner, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredits(rows)
}

func scanCredits(rows *sql.Rows) ([]credit.Credit, error) {
	var credits []credit.Credit
	for rows.Next() {
		var c credit.Credit
		var amount string
		var referralID sql.NullString
		var expiresAt, usedAt sql.NullTime

		if err := rows.Scan(&c.ID, &c.Owner, &amount, &c.Source, &referralID,
			&c.CreatedAt, &expiresAt, &c.Used, &usedAt); err != nil {
			return nil, err
		}

		var err error
		c.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("credit %s amount %q: %w", c.ID, amount, err)
		}
		if referralID.Valid {
			c.ReferralID = referralID.String
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			c.ExpiresAt = &t
		}
		if usedAt.Valid {
			t := usedAt.Time
			c.UsedAt = &t
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
