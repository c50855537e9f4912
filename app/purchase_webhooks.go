package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

// Credit sources recorded on grants, so history shows where a balance
// came from.
const (
	SourcePurchase = "purchase"
	SourceReferral = "referral_bonus"
)

// PurchaseWebhookService consumes "payment succeeded" events from the
// checkout system and records their ledger effects. The ledger never
// talks to a payment provider; events arrive already verified.
type PurchaseWebhookService struct {
	grants  ports.GrantStore
	credits *CreditService
	clock   ports.Clock
	idGen   ports.IDGenerator
	logger  zerolog.Logger
}

// NewPurchaseWebhookService creates a new purchase webhook service.
func NewPurchaseWebhookService(
	grants ports.GrantStore,
	credits *CreditService,
	clock ports.Clock,
	idGen ports.IDGenerator,
	logger zerolog.Logger,
) *PurchaseWebhookService {
	return &PurchaseWebhookService{
		grants:  grants,
		credits: credits,
		clock:   clock,
		idGen:   idGen,
		logger:  logger,
	}
}

// HandleAddOnPurchased records a purchased quota add-on. The grant
// starts counting toward the effective limit immediately.
func (s *PurchaseWebhookService) HandleAddOnPurchased(ctx context.Context, owner, resourceType string, quantity int64, expiresAt time.Time) error {
	if err := period.ValidateResource(resourceType); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("add-on quantity must be positive, got %d", quantity)
	}
	now := s.clock.Now()
	if !expiresAt.After(now) {
		return fmt.Errorf("add-on expiry %v is not in the future", expiresAt)
	}

	g := plan.AddOnGrant{
		ID:           s.idGen.New(),
		Owner:        owner,
		ResourceType: resourceType,
		Quantity:     quantity,
		ExpiresAt:    expiresAt,
		Active:       true,
		CreatedAt:    now,
	}
	if err := s.grants.Create(ctx, g); err != nil {
		s.logger.Error().Err(err).
			Str("owner", owner).
			Str("resource", resourceType).
			Msg("failed to record add-on purchase")
		return fmt.Errorf("create grant: %w", err)
	}

	s.logger.Info().
		Str("owner", owner).
		Str("resource", resourceType).
		Int64("quantity", quantity).
		Time("expires_at", expiresAt).
		Msg("add-on purchase recorded")
	return nil
}

// HandleCreditPurchase records purchased bonus credits.
func (s *PurchaseWebhookService) HandleCreditPurchase(ctx context.Context, owner string, amount decimal.Decimal, expiresAt *time.Time) error {
	_, err := s.credits.Grant(ctx, owner, amount, SourcePurchase, "", expiresAt)
	if err != nil {
		s.logger.Error().Err(err).
			Str("owner", owner).
			Str("amount", amount.String()).
			Msg("failed to record credit purchase")
		return err
	}
	return nil
}

// HandleReferralCompleted grants the referral bonus to both sides of a
// completed referral. The two grants share the referral id, so a replayed
// event is visible in history even though grants themselves are appends.
func (s *PurchaseWebhookService) HandleReferralCompleted(ctx context.Context, referrerID, referredID, referralID string, amount decimal.Decimal) error {
	if referrerID == referredID {
		return fmt.Errorf("self-referral rejected for %s", referrerID)
	}

	// Idempotency is per side: a replay after a partial failure grants
	// only the side that is still missing.
	for _, owner := range []string{referrerID, referredID} {
		recorded, err := s.referralRecorded(ctx, owner, referralID)
		if err != nil {
			return err
		}
		if recorded {
			s.logger.Warn().
				Str("referral_id", referralID).
				Str("owner", owner).
				Msg("referral bonus already granted, skipping")
			continue
		}
		if _, err := s.credits.Grant(ctx, owner, amount, SourceReferral, referralID, nil); err != nil {
			s.logger.Error().Err(err).
				Str("referral_id", referralID).
				Str("owner", owner).
				Msg("referral bonus grant failed")
			return fmt.Errorf("grant referral bonus: %w", err)
		}
	}

	s.logger.Info().
		Str("referrer", referrerID).
		Str("referred", referredID).
		Str("referral_id", referralID).
		Str("amount", amount.String()).
		Msg("referral bonus granted to both sides")
	return nil
}

func (s *PurchaseWebhookService) referralRecorded(ctx context.Context, owner, referralID string) (bool, error) {
	history, err := s.credits.History(ctx, owner)
	if err != nil {
		return false, fmt.Errorf("read credit history: %w", err)
	}
	for _, c := range history {
		if c.ReferralID == referralID && c.Source == SourceReferral {
			return true, nil
		}
	}
	return false, nil
}

// Ensure interface compliance.
var _ ports.PurchaseEventHandler = (*PurchaseWebhookService)(nil)
