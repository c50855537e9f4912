// Package plan provides plan value types and pure quota-policy functions.
// All functions are deterministic with no side effects.
package plan

import (
	"strconv"
	"time"
)

// Limit is the per-resource cap for a billing period.
// It is either a finite count or unlimited; the two cases never mix
// arithmetically, so an unlimited base cannot silently become a wrong
// finite number when add-ons are applied.
type Limit struct {
	unlimited bool
	n         int64
}

// Finite returns a limit of n operations per period.
func Finite(n int64) Limit {
	return Limit{n: n}
}

// Unlimited returns a limit that admits any usage.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the limit admits any usage.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the finite cap. ok is false for unlimited limits,
// in which case the count is meaningless and must not be used.
func (l Limit) Value() (n int64, ok bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Admits reports whether a usage count of used is still under the limit.
func (l Limit) Admits(used int64) bool {
	return l.unlimited || used < l.n
}

// String renders the limit for logs and API responses.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(l.n, 10)
}

// Plan represents a subscription tier (immutable value type).
// Limits maps resource names to their per-period base limits.
type Plan struct {
	ID     string
	Name   string
	Limits map[string]Limit
}

// BaseLimit returns the plan's base limit for a resource.
// Resources the plan does not mention are not granted at all.
func (p Plan) BaseLimit(resource string) Limit {
	if l, ok := p.Limits[resource]; ok {
		return l
	}
	return Finite(0)
}

// AddOnGrant is a purchased extension of a single resource's limit,
// bounded by its own expiry (immutable value type).
type AddOnGrant struct {
	ID           string
	Owner        string
	ResourceType string
	Quantity     int64
	ExpiresAt    time.Time
	Active       bool
	CreatedAt    time.Time
}

// Counts reports whether the grant contributes to the effective limit
// for resource at time now. Matching is exact-string on the resource
// type; a grant for "extra_chats" never widens "chats".
func (g AddOnGrant) Counts(resource string, now time.Time) bool {
	return g.Active && g.ResourceType == resource && g.ExpiresAt.After(now)
}

// EffectiveLimit resolves the limit for a (plan, resource) pair from the
// plan base plus all counting add-on grants. An unlimited base absorbs
// add-ons: addition to unlimited is meaningless and is never computed.
// This is a PURE function; safe to call unboundedly often.
func EffectiveLimit(p Plan, resource string, grants []AddOnGrant, now time.Time) Limit {
	base := p.BaseLimit(resource)
	if base.IsUnlimited() {
		return base
	}

	n, _ := base.Value()
	for _, g := range grants {
		if g.Counts(resource, now) {
			n += g.Quantity
		}
	}
	return Finite(n)
}

// FindPlan finds a plan by ID in a list.
// This is a PURE function.
func FindPlan(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
