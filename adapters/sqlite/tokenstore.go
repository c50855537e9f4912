package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/plutusfin/ledger/domain/token"
	"github.com/plutusfin/ledger/ports"
)

// TokenStore implements ports.TokenStore using SQLite.
//
// Claim is one conditional UPDATE; it succeeds iff exactly one row was
// affected, so two concurrent claimants can never both win. Share checks
// are plain SELECTs and never touch the claim columns.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a new SQLite token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Create stores a new token record.
func (s *TokenStore) Create(ctx context.Context, t token.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, kind, token_hash, payload, expires_at, created_at, claimed_by, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL)
	`, t.ID, string(t.Kind), t.Hash, t.Payload, t.ExpiresAt, t.CreatedAt)
	return err
}

// Claim atomically claims an unexpired, unclaimed invite token.
// A zero-row update is indistinguishable across unknown, expired,
// already-claimed, and wrong-kind tokens: all surface ErrTokenInvalid.
func (s *TokenStore) Claim(ctx context.Context, hash []byte, claimant string, now time.Time) (string, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tokens
		SET claimed_by = ?, claimed_at = ?
		WHERE token_hash = ? AND kind = ? AND claimed_by IS NULL AND expires_at > ?
	`, claimant, now, hash, string(token.KindInvite), now)
	if err != nil {
		return "", err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n != 1 {
		return "", token.ErrTokenInvalid
	}

	// The row is ours now; the payload read cannot race another claim.
	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload FROM tokens WHERE token_hash = ?
	`, hash).Scan(&payload)
	if err != nil {
		return "", err
	}
	return payload, nil
}

// CheckShare returns the payload of an unexpired share token without
// transitioning any state. Repeatable until expiry.
func (s *TokenStore) CheckShare(ctx context.Context, hash []byte, now time.Time) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM tokens
		WHERE token_hash = ? AND kind = ? AND expires_at > ?
	`, hash, string(token.KindShare), now).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", token.ErrTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

// GetByHash retrieves a token record for inspection.
func (s *TokenStore) GetByHash(ctx context.Context, hash []byte) (token.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, token_hash, payload, expires_at, created_at, claimed_by, claimed_at
		FROM tokens
		WHERE token_hash = ?
	`, hash)

	var t token.Token
	var kind string
	var claimedBy sql.NullString
	var claimedAt sql.NullTime

	err := row.Scan(&t.ID, &kind, &t.Hash, &t.Payload, &t.ExpiresAt, &t.CreatedAt, &claimedBy, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Token{}, ports.ErrNotFound
	}
	if err != nil {
		return token.Token{}, err
	}

	t.Kind = token.Kind(kind)
	if claimedBy.Valid {
		t.ClaimedBy = claimedBy.String
	}
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.Time
	}
	return t, nil
}

// DeleteExpired removes expired, unclaimed tokens.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tokens WHERE expires_at < ? AND claimed_by IS NULL
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.TokenStore = (*TokenStore)(nil)
