package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/domain/credit"
	"github.com/plutusfin/ledger/ports"
)

// CreditService manages bonus-credit balances. Grants append history;
// consumption is delegated to the store, which applies the FIFO plan
// atomically. A consume that loses a race with a concurrent consume is
// retried against the fresh state.
type CreditService struct {
	credits ports.CreditStore
	clock   ports.Clock
	idGen   ports.IDGenerator
	cfg     GateConfig
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewCreditService creates a new credit service.
func NewCreditService(
	credits ports.CreditStore,
	clock ports.Clock,
	idGen ports.IDGenerator,
	cfg GateConfig,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *CreditService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &CreditService{
		credits: credits,
		clock:   clock,
		idGen:   idGen,
		cfg:     cfg,
		metrics: collector,
		logger:  logger,
	}
}

// Grant credits an owner with a new bonus-credit record.
func (s *CreditService) Grant(ctx context.Context, owner string, amount decimal.Decimal, source, referralID string, expiresAt *time.Time) (credit.Credit, error) {
	if !amount.IsPositive() {
		return credit.Credit{}, credit.ErrNonPositiveAmount
	}

	c := credit.Credit{
		ID:         s.idGen.New(),
		Owner:      owner,
		Amount:     amount,
		Source:     source,
		ReferralID: referralID,
		CreatedAt:  s.clock.Now(),
		ExpiresAt:  expiresAt,
	}
	if err := s.credits.Grant(ctx, c); err != nil {
		return credit.Credit{}, fmt.Errorf("grant credit: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CreditGrants.WithLabelValues(source).Inc()
	}
	s.logger.Info().
		Str("owner", owner).
		Str("amount", amount.String()).
		Str("source", source).
		Msg("bonus credit granted")
	return c, nil
}

// Available returns the owner's spendable balance.
func (s *CreditService) Available(ctx context.Context, owner string) (decimal.Decimal, error) {
	return s.credits.Available(ctx, owner, s.clock.Now())
}

// Consume debits amount from the owner's balance, oldest credits first.
// Lost races are retried against the fresh state; a shortfall is final
// and surfaces credit.ErrInsufficientCredits.
func (s *CreditService) Consume(ctx context.Context, owner string, amount decimal.Decimal) error {
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.WriteConflicts.WithLabelValues("credits").Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		err = s.credits.Consume(ctx, owner, amount, s.clock.Now())
		if err == nil {
			if s.metrics != nil {
				s.metrics.CreditConsumes.WithLabelValues("ok").Inc()
			}
			s.logger.Info().
				Str("owner", owner).
				Str("amount", amount.String()).
				Msg("credits consumed")
			return nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			break
		}
	}

	if s.metrics != nil {
		outcome := "error"
		if errors.Is(err, credit.ErrInsufficientCredits) {
			outcome = "insufficient"
		} else if errors.Is(err, ports.ErrConflict) {
			outcome = "conflict"
		}
		s.metrics.CreditConsumes.WithLabelValues(outcome).Inc()
	}
	return err
}

// History returns the owner's credit records, oldest first.
func (s *CreditService) History(ctx context.Context, owner string) ([]credit.Credit, error) {
	return s.credits.ListByOwner(ctx, owner)
}
