package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/domain/token"
	"github.com/plutusfin/ledger/ports"
)

// tokenValueLen is the plaintext length of an issued token. 32 random
// bytes hex-encode to 64 characters.
const tokenValueLen = 64

// TokenService issues and resolves single-use and share tokens.
// Plaintext values are returned exactly once at issue time; only the
// SHA-256 hash is ever stored or looked up.
type TokenService struct {
	tokens  ports.TokenStore
	clock   ports.Clock
	random  ports.Random
	idGen   ports.IDGenerator
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(
	tokens ports.TokenStore,
	clock ports.Clock,
	random ports.Random,
	idGen ports.IDGenerator,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *TokenService {
	return &TokenService{
		tokens:  tokens,
		clock:   clock,
		random:  random,
		idGen:   idGen,
		metrics: collector,
		logger:  logger,
	}
}

// Issue creates a token of the given kind carrying an opaque payload
// and returns the plaintext value. The plaintext is not recoverable
// afterwards.
func (s *TokenService) Issue(ctx context.Context, kind token.Kind, payload string, ttl time.Duration) (plaintext string, t token.Token, err error) {
	if kind != token.KindInvite && kind != token.KindShare {
		return "", token.Token{}, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", token.Token{}, fmt.Errorf("ttl must be positive, got %v", ttl)
	}

	plaintext, err = s.random.String(tokenValueLen)
	if err != nil {
		return "", token.Token{}, fmt.Errorf("generate token value: %w", err)
	}

	now := s.clock.Now()
	t = token.Token{
		ID:        s.idGen.New(),
		Kind:      kind,
		Hash:      token.HashValue(plaintext),
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return "", token.Token{}, fmt.Errorf("store token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TokenIssues.WithLabelValues(string(kind)).Inc()
	}
	s.logger.Info().
		Str("token_id", t.ID).
		Str("kind", string(kind)).
		Time("expires_at", t.ExpiresAt).
		Msg("token issued")
	return plaintext, t, nil
}

// Claim consumes an invite token and returns its payload. The claim is
// exclusive: once any claimant succeeds, every later attempt fails with
// token.ErrTokenInvalid, indistinguishable from an unknown or expired
// token.
func (s *TokenService) Claim(ctx context.Context, plaintext, claimant string) (string, error) {
	payload, err := s.tokens.Claim(ctx, token.HashValue(plaintext), claimant, s.clock.Now())

	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "invalid"
		}
		s.metrics.TokenClaims.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		// No token identifiers in the log: the plaintext is secret and
		// the failure cause is deliberately opaque.
		s.logger.Debug().Str("claimant", claimant).Msg("token claim rejected")
		return "", err
	}

	s.logger.Info().Str("claimant", claimant).Msg("token claimed")
	return payload, nil
}

// CheckShare resolves a share token to its payload without consuming
// it. Valid until expiry, however many times it is checked.
func (s *TokenService) CheckShare(ctx context.Context, plaintext string) (string, error) {
	payload, err := s.tokens.CheckShare(ctx, token.HashValue(plaintext), s.clock.Now())

	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "invalid"
		}
		s.metrics.ShareChecks.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

// CleanupExpired removes expired, unclaimed tokens and returns how many
// were deleted. Claimed tokens are history and are never removed.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("expired tokens cleaned up")
	}
	return deleted, nil
}

// CleanupLoop runs CleanupExpired on a fixed interval until the context
// is cancelled.
func (s *TokenService) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.logger.Error().Err(err).Msg("token cleanup failed")
			}
		}
	}
}
