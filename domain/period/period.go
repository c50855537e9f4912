// Package period provides billing-period value types and pure functions.
// A billing period is the calendar month bracketing a point in time.
package period

import (
	"fmt"
	"time"
)

// Resource names for the metered capabilities. These are the only
// countable resources; stores whitelist against this set so a typo in a
// caller surfaces as an error instead of a silently dropped increment.
const (
	ResourceScout        = "scout"
	ResourceSonnet       = "sonnet"
	ResourceGPT5         = "gpt5"
	ResourceOpus         = "opus"
	ResourceChats        = "chats"
	ResourceDeepAnalysis = "deep_analysis"
)

// Resources lists every metered resource in a stable order.
var Resources = []string{
	ResourceScout,
	ResourceSonnet,
	ResourceGPT5,
	ResourceOpus,
	ResourceChats,
	ResourceDeepAnalysis,
}

// Known reports whether resource is a metered resource name.
func Known(resource string) bool {
	for _, r := range Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// UsagePeriod holds one owner's consumption counters for one billing
// period. Counters only grow within a period; they reset solely by the
// creation of the next period's row, never by mutating this one.
type UsagePeriod struct {
	Owner       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Counters    map[string]int64
}

// Used returns the counter for a resource, zero when untouched.
func (p UsagePeriod) Used(resource string) int64 {
	return p.Counters[resource]
}

// Contains reports whether t falls inside the period window.
func (p UsagePeriod) Contains(t time.Time) bool {
	return !t.Before(p.PeriodStart) && !t.After(p.PeriodEnd)
}

// Bounds returns the start and end of the billing period containing t.
// This is a PURE function.
func Bounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}

// New returns a fresh period for owner with all counters at zero.
// This is a PURE function.
func New(owner string, at time.Time) UsagePeriod {
	start, end := Bounds(at)
	counters := make(map[string]int64, len(Resources))
	for _, r := range Resources {
		counters[r] = 0
	}
	return UsagePeriod{
		Owner:       owner,
		PeriodStart: start,
		PeriodEnd:   end,
		Counters:    counters,
	}
}

// ValidateResource returns an error naming the unknown resource.
func ValidateResource(resource string) error {
	if !Known(resource) {
		return fmt.Errorf("unknown resource %q", resource)
	}
	return nil
}
