package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/ports"
)

// counterColumns maps resource names to their whitelisted counter
// columns. Increment interpolates column names into SQL, so the map is
// the only path from caller input to the statement text.
var counterColumns = map[string]string{
	period.ResourceScout:        "scout_used",
	period.ResourceSonnet:       "sonnet_used",
	period.ResourceGPT5:         "gpt5_used",
	period.ResourceOpus:         "opus_used",
	period.ResourceChats:        "chats_used",
	period.ResourceDeepAnalysis: "deep_analysis_used",
}

// UsageStore implements ports.UsageStore using SQLite.
// One row per (owner, period_start); increments are atomic upserts, so
// concurrent requests from the same owner never lose updates.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// CurrentPeriod returns the period bracketing now, creating the row
// lazily. INSERT OR IGNORE keyed on (owner, period_start) makes creation
// idempotent: two concurrent first-accesses race to one row.
func (s *UsageStore) CurrentPeriod(ctx context.Context, owner string, now time.Time) (period.UsagePeriod, error) {
	fresh := period.New(owner, now)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO usage_periods (owner, period_start, period_end)
		VALUES (?, ?, ?)
	`, owner, fresh.PeriodStart, fresh.PeriodEnd)
	if err != nil {
		return period.UsagePeriod{}, fmt.Errorf("ensure period: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT owner, period_start, period_end,
		       scout_used, sonnet_used, gpt5_used, opus_used, chats_used, deep_analysis_used
		FROM usage_periods
		WHERE owner = ? AND period_start = ?
	`, owner, fresh.PeriodStart)

	return scanPeriod(row)
}

// Increment atomically adds amount to one resource counter in the period
// bracketing now. The whole read-modify-write happens inside the single
// upsert statement.
func (s *UsageStore) Increment(ctx context.Context, owner, resource string, amount int64, now time.Time) error {
	col, ok := counterColumns[resource]
	if !ok {
		return period.ValidateResource(resource)
	}
	if amount < 0 {
		return fmt.Errorf("negative increment %d for %s", amount, resource)
	}

	start, end := period.Bounds(now)

	query := fmt.Sprintf(`
		INSERT INTO usage_periods (owner, period_start, period_end, %[1]s)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, period_start) DO UPDATE SET
			%[1]s = %[1]s + excluded.%[1]s
	`, col)

	if _, err := s.db.ExecContext(ctx, query, owner, start, end, amount); err != nil {
		return fmt.Errorf("increment %s: %w", resource, err)
	}
	return nil
}

// Used reads the current counter; zero if no period row exists yet.
func (s *UsageStore) Used(ctx context.Context, owner, resource string, now time.Time) (int64, error) {
	col, ok := counterColumns[resource]
	if !ok {
		return 0, period.ValidateResource(resource)
	}

	start, _ := period.Bounds(now)

	var used int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM usage_periods
		WHERE owner = ? AND period_start = ?
	`, col), owner, start).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

func scanPeriod(row *sql.Row) (period.UsagePeriod, error) {
	var p period.UsagePeriod
	counters := make(map[string]int64, len(period.Resources))

	var scout, sonnet, gpt5, opus, chats, deep int64
	err := row.Scan(
		&p.Owner, &p.PeriodStart, &p.PeriodEnd,
		&scout, &sonnet, &gpt5, &opus, &chats, &deep,
	)
	if err == sql.ErrNoRows {
		return period.UsagePeriod{}, ports.ErrNotFound
	}
	if err != nil {
		return period.UsagePeriod{}, err
	}

	counters[period.ResourceScout] = scout
	counters[period.ResourceSonnet] = sonnet
	counters[period.ResourceGPT5] = gpt5
	counters[period.ResourceOpus] = opus
	counters[period.ResourceChats] = chats
	counters[period.ResourceDeepAnalysis] = deep
	p.Counters = counters

	return p, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
