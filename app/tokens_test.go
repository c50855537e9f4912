package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/plutusfin/ledger/adapters/clock"
	"github.com/plutusfin/ledger/adapters/idgen"
	"github.com/plutusfin/ledger/adapters/memory"
	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/adapters/random"
	"github.com/plutusfin/ledger/app"
	"github.com/plutusfin/ledger/domain/token"
)

func newTokenService(t *testing.T) (*app.TokenService, *memory.TokenStore, *clock.Fake, *metrics.Collector) {
	t.Helper()
	fc := clock.NewFake(testNow)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	store := memory.NewTokenStore()
	svc := app.NewTokenService(store, fc, random.NewFake(), idgen.NewSequential("tok-"), m, zerolog.Nop())
	return svc, store, fc, m
}

func TestTokenService_IssueAndClaim(t *testing.T) {
	svc, store, _, m := newTokenService(t)
	ctx := context.Background()

	plaintext, issued, err := svc.Issue(ctx, token.KindInvite, `{"inviter":"user-1"}`, 48*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if plaintext == "" {
		t.Fatal("plaintext must be returned at issue time")
	}
	if !issued.ExpiresAt.Equal(testNow.Add(48 * time.Hour)) {
		t.Errorf("expires at = %v, want issue time plus ttl", issued.ExpiresAt)
	}

	// Only the hash is stored.
	stored, err := store.GetByHash(ctx, token.HashValue(plaintext))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Payload != `{"inviter":"user-1"}` {
		t.Errorf("payload = %s", stored.Payload)
	}

	payload, err := svc.Claim(ctx, plaintext, "user-2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payload != `{"inviter":"user-1"}` {
		t.Errorf("payload = %s", payload)
	}

	if got := testutil.ToFloat64(m.TokenClaims.WithLabelValues("ok")); got != 1 {
		t.Errorf("claim counter = %v, want 1", got)
	}
}

func TestTokenService_ClaimIsExclusive(t *testing.T) {
	svc, _, _, m := newTokenService(t)
	ctx := context.Background()

	plaintext, _, err := svc.Issue(ctx, token.KindInvite, "p", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Claim(ctx, plaintext, "user-2"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.Claim(ctx, plaintext, "user-3"); !errors.Is(err, token.ErrTokenInvalid) {
		t.Errorf("second claim err = %v, want ErrTokenInvalid", err)
	}
	if got := testutil.ToFloat64(m.TokenClaims.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid counter = %v, want 1", got)
	}
}

func TestTokenService_ClaimExpired(t *testing.T) {
	svc, _, fc, _ := newTokenService(t)
	ctx := context.Background()

	plaintext, _, err := svc.Issue(ctx, token.KindInvite, "p", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	fc.Advance(2 * time.Hour)
	if _, err := svc.Claim(ctx, plaintext, "user-2"); !errors.Is(err, token.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_ShareIsRepeatable(t *testing.T) {
	svc, _, _, _ := newTokenService(t)
	ctx := context.Background()

	plaintext, _, err := svc.Issue(ctx, token.KindShare, "dashboard-42", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		payload, err := svc.CheckShare(ctx, plaintext)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if payload != "dashboard-42" {
			t.Errorf("payload = %s", payload)
		}
	}

	// A share token can never be claimed.
	if _, err := svc.Claim(ctx, plaintext, "user-2"); !errors.Is(err, token.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_IssueRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newTokenService(t)
	ctx := context.Background()

	if _, _, err := svc.Issue(ctx, token.Kind("magic"), "p", time.Hour); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, _, err := svc.Issue(ctx, token.KindInvite, "p", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestTokenService_IssuedValuesAreUnique(t *testing.T) {
	svc, _, _, _ := newTokenService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		plaintext, _, err := svc.Issue(ctx, token.KindInvite, "p", time.Hour)
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if seen[plaintext] {
			t.Fatalf("duplicate token value at issue %d", i)
		}
		seen[plaintext] = true
	}
}

func TestTokenService_CleanupExpired(t *testing.T) {
	svc, store, fc, _ := newTokenService(t)
	ctx := context.Background()

	short, _, err := svc.Issue(ctx, token.KindInvite, "p", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	long, _, err := svc.Issue(ctx, token.KindInvite, "p", 100*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	fc.Advance(2 * time.Hour)
	deleted, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := store.GetByHash(ctx, token.HashValue(short)); err == nil {
		t.Error("expired token should be gone")
	}
	if _, err := store.GetByHash(ctx, token.HashValue(long)); err != nil {
		t.Errorf("valid token should survive: %v", err)
	}
}
