// Package app contains the application services. Services orchestrate
// the pure domain functions against the injected store ports; all I/O
// happens at the edges.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

// ErrQuotaExceeded means the owner's effective limit admits no further
// usage of the resource this period.
var ErrQuotaExceeded = errors.New("quota exceeded")

// CheckResult is the outcome of a quota check.
type CheckResult struct {
	Allowed bool
	Used    int64
	Limit   plan.Limit
}

// GateConfig bounds the retry loop on write conflicts.
type GateConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// QuotaGate answers "may this owner consume this resource now?" and
// records consumption after the gated operation succeeds. The charge
// always lands, even when a concurrent request pushed usage over the
// limit between check and charge: the gate meters, it does not refund.
type QuotaGate struct {
	plans   ports.PlanSource
	grants  ports.GrantStore
	usage   ports.UsageStore
	clock   ports.Clock
	cfg     GateConfig
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewQuotaGate creates a new quota gate.
func NewQuotaGate(
	plans ports.PlanSource,
	grants ports.GrantStore,
	usage ports.UsageStore,
	clock ports.Clock,
	cfg GateConfig,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *QuotaGate {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &QuotaGate{
		plans:   plans,
		grants:  grants,
		usage:   usage,
		clock:   clock,
		cfg:     cfg,
		metrics: collector,
		logger:  logger,
	}
}

// Check reports whether the owner may consume one unit of resource in
// the current billing period. It never mutates state.
func (g *QuotaGate) Check(ctx context.Context, owner, resource string) (CheckResult, error) {
	if err := period.ValidateResource(resource); err != nil {
		return CheckResult{}, err
	}
	now := g.clock.Now()

	p, err := g.plans.PlanFor(ctx, owner)
	if err != nil {
		return CheckResult{}, fmt.Errorf("resolve plan: %w", err)
	}

	grants, err := g.grants.ListActive(ctx, owner, now)
	if err != nil {
		return CheckResult{}, fmt.Errorf("list grants: %w", err)
	}

	used, err := g.usage.Used(ctx, owner, resource, now)
	if err != nil {
		return CheckResult{}, fmt.Errorf("read usage: %w", err)
	}

	limit := plan.EffectiveLimit(p, resource, grants, now)
	allowed := limit.Admits(used)

	if g.metrics != nil {
		g.metrics.QuotaChecks.WithLabelValues(resource, strconv.FormatBool(allowed)).Inc()
		if !allowed {
			g.metrics.QuotaDenials.WithLabelValues(resource).Inc()
		}
	}

	if !allowed {
		g.logger.Debug().
			Str("owner", owner).
			Str("resource", resource).
			Int64("used", used).
			Str("limit", limit.String()).
			Msg("quota check denied")
	}

	return CheckResult{Allowed: allowed, Used: used, Limit: limit}, nil
}

// Authorize is Check with a denial folded into the error: it returns
// ErrQuotaExceeded when the limit admits no further usage.
func (g *QuotaGate) Authorize(ctx context.Context, owner, resource string) (CheckResult, error) {
	res, err := g.Check(ctx, owner, resource)
	if err != nil {
		return CheckResult{}, err
	}
	if !res.Allowed {
		return res, ErrQuotaExceeded
	}
	return res, nil
}

// ChargeAfterSuccess records amount units of consumption after the
// gated operation completed. It retries a bounded number of times on
// write conflicts; a charge that still fails after retries is returned
// to the caller, who must not re-run the operation.
func (g *QuotaGate) ChargeAfterSuccess(ctx context.Context, owner, resource string, amount int64) error {
	if err := period.ValidateResource(resource); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	var err error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if g.metrics != nil {
				g.metrics.WriteConflicts.WithLabelValues("usage").Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		err = g.usage.Increment(ctx, owner, resource, amount, g.clock.Now())
		if err == nil {
			if g.metrics != nil {
				g.metrics.Charges.WithLabelValues(resource).Add(float64(amount))
			}
			return nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			break
		}
	}

	g.logger.Error().Err(err).
		Str("owner", owner).
		Str("resource", resource).
		Int64("amount", amount).
		Msg("charge failed")
	return fmt.Errorf("charge %s for %s: %w", resource, owner, err)
}

// Usage returns the owner's current-period counters together with the
// effective limit for each resource.
func (g *QuotaGate) Usage(ctx context.Context, owner string) (period.UsagePeriod, map[string]plan.Limit, error) {
	now := g.clock.Now()

	p, err := g.plans.PlanFor(ctx, owner)
	if err != nil {
		return period.UsagePeriod{}, nil, fmt.Errorf("resolve plan: %w", err)
	}
	grants, err := g.grants.ListActive(ctx, owner, now)
	if err != nil {
		return period.UsagePeriod{}, nil, fmt.Errorf("list grants: %w", err)
	}
	up, err := g.usage.CurrentPeriod(ctx, owner, now)
	if err != nil {
		return period.UsagePeriod{}, nil, fmt.Errorf("read period: %w", err)
	}

	limits := make(map[string]plan.Limit, len(period.Resources))
	for _, r := range period.Resources {
		limits[r] = plan.EffectiveLimit(p, r, grants, now)
	}
	return up, limits, nil
}
