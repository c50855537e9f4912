// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/domain/credit"
	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/domain/token"
)

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

// ErrConflict marks the losing side of a race on an atomic conditional
// update. It is transient: callers may retry a bounded number of times
// with backoff.
var ErrConflict = errors.New("write conflict")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// GrantStore persists add-on grants.
type GrantStore interface {
	// Create stores a new grant.
	Create(ctx context.Context, g plan.AddOnGrant) error

	// ListActive returns grants for an owner that are active and
	// unexpired at the given instant.
	ListActive(ctx context.Context, owner string, now time.Time) ([]plan.AddOnGrant, error)

	// Deactivate marks a grant inactive (e.g., refunded purchase).
	Deactivate(ctx context.Context, id string) error
}

// UsageStore persists per-owner, per-billing-period consumption counters.
//
// Increment must be a single atomic conditional update against the
// store, never a fetch-then-write round trip: concurrent requests from
// the same owner are the expected case.
type UsageStore interface {
	// CurrentPeriod returns the period bracketing now, creating it
	// lazily. Creation is idempotent under concurrent first access.
	CurrentPeriod(ctx context.Context, owner string, now time.Time) (period.UsagePeriod, error)

	// Increment atomically adds amount to one resource counter in the
	// period bracketing now. Returns ErrConflict on a losing race; the
	// caller retries the whole increment.
	Increment(ctx context.Context, owner, resource string, amount int64, now time.Time) error

	// Used reads the current counter; zero if no period row exists yet.
	Used(ctx context.Context, owner, resource string, now time.Time) (int64, error)
}

// CreditStore persists bonus-credit grants and applies consumption plans.
type CreditStore interface {
	// Grant inserts a new unused credit record (pure append).
	Grant(ctx context.Context, c credit.Credit) error

	// Available sums unused, unexpired credit amounts for an owner.
	Available(ctx context.Context, owner string, now time.Time) (decimal.Decimal, error)

	// Consume debits amount oldest-first in one transaction, splitting
	// the boundary record when it overshoots. On shortfall it fails
	// with credit.ErrInsufficientCredits and applies nothing; on a lost
	// race with a concurrent consume it fails with ErrConflict and
	// applies nothing.
	Consume(ctx context.Context, owner string, amount decimal.Decimal, now time.Time) error

	// ListByOwner returns the owner's credit history, oldest first.
	ListByOwner(ctx context.Context, owner string) ([]credit.Credit, error)
}

// TokenStore persists single-use and share tokens.
type TokenStore interface {
	// Create stores a new token record.
	Create(ctx context.Context, t token.Token) error

	// Claim atomically claims an unexpired, unclaimed invite token and
	// returns its payload. It fails with token.ErrTokenInvalid whether
	// the token is unknown, expired, already claimed, or of the wrong
	// kind; the caller cannot tell which and must not retry.
	Claim(ctx context.Context, hash []byte, claimant string, now time.Time) (payload string, err error)

	// CheckShare returns the payload of an unexpired share token
	// without transitioning any state. Repeatable until expiry.
	CheckShare(ctx context.Context, hash []byte, now time.Time) (payload string, err error)

	// GetByHash retrieves a token record for inspection.
	GetByHash(ctx context.Context, hash []byte) (token.Token, error)

	// DeleteExpired removes expired, unclaimed tokens.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Policy Ports
// -----------------------------------------------------------------------------

// PlanSource resolves the plan assigned to an owner. Plans themselves
// come from configuration and are hot-reloadable; the binding of owner
// to plan belongs to the subscription system, which this ledger consumes
// as a collaborator.
type PlanSource interface {
	// PlanFor returns the owner's current plan.
	PlanFor(ctx context.Context, owner string) (plan.Plan, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// PurchaseEventHandler consumes opaque "payment succeeded" events from
// the checkout system. The ledger never talks to a payment provider.
type PurchaseEventHandler interface {
	// HandleAddOnPurchased records a purchased quota add-on.
	HandleAddOnPurchased(ctx context.Context, owner, resourceType string, quantity int64, expiresAt time.Time) error

	// HandleCreditPurchase records purchased bonus credits.
	HandleCreditPurchase(ctx context.Context, owner string, amount decimal.Decimal, expiresAt *time.Time) error

	// HandleReferralCompleted grants the referral bonus to both sides.
	HandleReferralCompleted(ctx context.Context, referrerID, referredID, referralID string, amount decimal.Decimal) error
}
