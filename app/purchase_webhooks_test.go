package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/adapters/clock"
	"github.com/plutusfin/ledger/adapters/idgen"
	"github.com/plutusfin/ledger/adapters/memory"
	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/app"
	"github.com/plutusfin/ledger/domain/period"
)

type webhookFixture struct {
	svc     *app.PurchaseWebhookService
	grants  *memory.GrantStore
	credits *app.CreditService
	clock   *clock.Fake
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	fc := clock.NewFake(testNow)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	creditStore := memory.NewCreditStore(idgen.NewSequential("split-"))
	credits := app.NewCreditService(creditStore, fc, idgen.NewSequential("credit-"), app.GateConfig{}, m, zerolog.Nop())
	grants := memory.NewGrantStore()
	return &webhookFixture{
		svc:     app.NewPurchaseWebhookService(grants, credits, fc, idgen.NewSequential("grant-"), zerolog.Nop()),
		grants:  grants,
		credits: credits,
		clock:   fc,
	}
}

func TestWebhooks_AddOnPurchase(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	err := f.svc.HandleAddOnPurchased(ctx, "user-1", period.ResourceScout, 25, testNow.Add(720*time.Hour))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	grants, err := f.grants.ListActive(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(grants))
	}
	g := grants[0]
	if g.ResourceType != period.ResourceScout || g.Quantity != 25 || !g.Active {
		t.Errorf("grant = %+v", g)
	}
}

func TestWebhooks_AddOnRejectsBadInput(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	if err := f.svc.HandleAddOnPurchased(ctx, "user-1", "warp_drive", 5, testNow.Add(time.Hour)); err == nil {
		t.Error("expected error for unknown resource")
	}
	if err := f.svc.HandleAddOnPurchased(ctx, "user-1", period.ResourceScout, 0, testNow.Add(time.Hour)); err == nil {
		t.Error("expected error for zero quantity")
	}
	if err := f.svc.HandleAddOnPurchased(ctx, "user-1", period.ResourceScout, 5, testNow.Add(-time.Hour)); err == nil {
		t.Error("expected error for past expiry")
	}
}

func TestWebhooks_CreditPurchase(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	expiry := testNow.Add(90 * 24 * time.Hour)
	if err := f.svc.HandleCreditPurchase(ctx, "user-1", decimal.RequireFromString("50"), &expiry); err != nil {
		t.Fatalf("handle: %v", err)
	}

	avail, _ := f.credits.Available(ctx, "user-1")
	if !avail.Equal(decimal.RequireFromString("50")) {
		t.Errorf("available = %s, want 50", avail)
	}

	history, _ := f.credits.History(ctx, "user-1")
	if len(history) != 1 || history[0].Source != app.SourcePurchase {
		t.Errorf("history = %+v, want one purchase record", history)
	}
}

func TestWebhooks_ReferralGrantsBothSides(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	bonus := decimal.RequireFromString("10.00")
	if err := f.svc.HandleReferralCompleted(ctx, "referrer", "referred", "ref-1", bonus); err != nil {
		t.Fatalf("handle: %v", err)
	}

	for _, owner := range []string{"referrer", "referred"} {
		avail, _ := f.credits.Available(ctx, owner)
		if !avail.Equal(bonus) {
			t.Errorf("%s available = %s, want %s", owner, avail, bonus)
		}
		history, _ := f.credits.History(ctx, owner)
		if len(history) != 1 || history[0].ReferralID != "ref-1" || history[0].Source != app.SourceReferral {
			t.Errorf("%s history = %+v", owner, history)
		}
	}
}

func TestWebhooks_ReferralReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	bonus := decimal.RequireFromString("10.00")
	for i := 0; i < 3; i++ {
		if err := f.svc.HandleReferralCompleted(ctx, "referrer", "referred", "ref-1", bonus); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	for _, owner := range []string{"referrer", "referred"} {
		avail, _ := f.credits.Available(ctx, owner)
		if !avail.Equal(bonus) {
			t.Errorf("%s available = %s, want single bonus %s", owner, avail, bonus)
		}
	}
}

func TestWebhooks_ReferralSelfReferralRejected(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	err := f.svc.HandleReferralCompleted(ctx, "user-1", "user-1", "ref-1", decimal.RequireFromString("10"))
	if err == nil {
		t.Error("expected error for self-referral")
	}
}

func TestWebhooks_DistinctReferralsAccumulate(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	bonus := decimal.RequireFromString("10.00")
	if err := f.svc.HandleReferralCompleted(ctx, "referrer", "alice", "ref-1", bonus); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.svc.HandleReferralCompleted(ctx, "referrer", "bob", "ref-2", bonus); err != nil {
		t.Fatalf("handle: %v", err)
	}

	avail, _ := f.credits.Available(ctx, "referrer")
	if !avail.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("referrer available = %s, want 20.00", avail)
	}
}
