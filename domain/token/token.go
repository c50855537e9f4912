// Package token provides single-use and share token value types.
//
// Two profiles exist and deliberately do not share a claim path: an
// invite token is consumable (claiming it is a one-way transition that
// can succeed exactly once), while a share token is repeatable (validity
// is checked without ever transitioning state, until it expires). Only
// the expiry rule is common.
package token

import (
	"crypto/sha256"
	"errors"
	"time"
)

// Kind selects the token profile.
type Kind string

const (
	// KindInvite is the consumable profile: one successful claim, ever.
	KindInvite Kind = "invite"
	// KindShare is the read-only repeatable profile: valid until expiry.
	KindShare Kind = "share"
)

// ErrTokenInvalid covers unknown, expired, and already-claimed tokens.
// The caller cannot distinguish the cases and must not retry a claim.
var ErrTokenInvalid = errors.New("token invalid, expired, or consumed")

// Token is a stored token record. Only the SHA-256 hash of the issued
// value is persisted; the plaintext is returned once at issue time.
type Token struct {
	ID        string
	Kind      Kind
	Hash      []byte
	Payload   string
	ExpiresAt time.Time
	CreatedAt time.Time
	ClaimedBy string
	ClaimedAt *time.Time
}

// Expired reports whether the token's expiry has passed at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Claimable reports whether an invite token can still be claimed at now.
// Share tokens are never claimable; they are only checkable.
func (t Token) Claimable(now time.Time) bool {
	return t.Kind == KindInvite && t.ClaimedBy == "" && !t.Expired(now)
}

// Checkable reports whether a share token is still valid at now.
func (t Token) Checkable(now time.Time) bool {
	return t.Kind == KindShare && !t.Expired(now)
}

// HashValue derives the stored lookup hash from a plaintext token value.
func HashValue(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}
