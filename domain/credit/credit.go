// Package credit provides bonus-credit value types and the pure FIFO
// consumption planner. Credits are monetary-like balances separate from
// quota: granted in whole, consumed oldest-first, and divisible by
// splitting the record at the consumption boundary.
package credit

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientCredits means the owner's available balance cannot cover
// the requested amount. The whole consume fails; no partial debit is ever
// applied.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrNonPositiveAmount rejects zero or negative grant/consume amounts.
var ErrNonPositiveAmount = errors.New("amount must be positive")

// Credit is one bonus-credit grant record (immutable history).
// A record is either untouched, fully marked used, or was split: the
// original reduced and marked used, with a new unused sibling carrying
// the remainder. Splits never create or destroy amount.
type Credit struct {
	ID         string
	Owner      string
	Amount     decimal.Decimal
	Source     string
	ReferralID string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	Used       bool
	UsedAt     *time.Time
}

// Expired reports whether the credit's expiry has passed at now.
// Credits without an expiry never expire.
func (c Credit) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Consumable reports whether the credit can still be spent at now.
func (c Credit) Consumable(now time.Time) bool {
	return !c.Used && !c.Expired(now)
}

// AvailableTotal sums the unused, unexpired amounts.
// This is a PURE function.
func AvailableTotal(credits []Credit, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		if c.Consumable(now) {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// Split describes the boundary record of a consumption: the original is
// reduced to UsedPortion and marked used, and a new unused sibling is
// inserted carrying Remainder with the same source/expiry metadata.
// UsedPortion + Remainder equals the original amount.
type Split struct {
	CreditID    string
	UsedPortion decimal.Decimal
	Remainder   decimal.Decimal
}

// ConsumptionPlan is the result of a FIFO walk: the records to mark
// fully used, in order, plus at most one boundary split.
type ConsumptionPlan struct {
	FullUse []string
	Split   *Split
	Total   decimal.Decimal
}

// SortFIFO orders credits oldest-created first, breaking creation-time
// ties by ID so depletion order is deterministic.
func SortFIFO(credits []Credit) {
	sort.Slice(credits, func(i, j int) bool {
		if credits[i].CreatedAt.Equal(credits[j].CreatedAt) {
			return credits[i].ID < credits[j].ID
		}
		return credits[i].CreatedAt.Before(credits[j].CreatedAt)
	})
}

// PlanConsumption computes the FIFO consumption plan for amount against a
// snapshot of the owner's credits. It walks consumable credits oldest
// first, accumulating: records covered entirely are marked for full use;
// the record at which the running total first reaches the requested
// amount is either used in place (exact match) or split. If the snapshot
// cannot cover amount the plan is rejected with ErrInsufficientCredits
// and nothing may be applied.
// This is a PURE function; applying the plan atomically is the store's job.
func PlanConsumption(credits []Credit, amount decimal.Decimal, now time.Time) (ConsumptionPlan, error) {
	if !amount.IsPositive() {
		return ConsumptionPlan{}, ErrNonPositiveAmount
	}

	eligible := make([]Credit, 0, len(credits))
	for _, c := range credits {
		if c.Consumable(now) {
			eligible = append(eligible, c)
		}
	}
	SortFIFO(eligible)

	plan := ConsumptionPlan{Total: amount}
	remaining := amount

	for _, c := range eligible {
		switch c.Amount.Cmp(remaining) {
		case -1: // fully consumed, keep walking
			plan.FullUse = append(plan.FullUse, c.ID)
			remaining = remaining.Sub(c.Amount)
		case 0: // exact match, used in place
			plan.FullUse = append(plan.FullUse, c.ID)
			return plan, nil
		case 1: // overshoot, split at the boundary
			plan.Split = &Split{
				CreditID:    c.ID,
				UsedPortion: remaining,
				Remainder:   c.Amount.Sub(remaining),
			}
			return plan, nil
		}
	}

	return ConsumptionPlan{}, ErrInsufficientCredits
}
