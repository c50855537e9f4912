package sqlite_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/plutusfin/ledger/adapters/sqlite"
	"github.com/plutusfin/ledger/domain/period"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "ledger-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// -----------------------------------------------------------------------------
// Migration Tests
// -----------------------------------------------------------------------------

func TestMigration_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Run migrations again - should be idempotent
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migration: %v", err)
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_CurrentPeriodLazyCreate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	p, err := store.CurrentPeriod(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	wantStart, wantEnd := period.Bounds(testNow)
	if !p.PeriodStart.Equal(wantStart) {
		t.Errorf("PeriodStart = %v, want %v", p.PeriodStart, wantStart)
	}
	if !p.PeriodEnd.Equal(wantEnd) {
		t.Errorf("PeriodEnd = %v, want %v", p.PeriodEnd, wantEnd)
	}
	for _, r := range period.Resources {
		if p.Used(r) != 0 {
			t.Errorf("Used(%s) = %d, want 0", r, p.Used(r))
		}
	}
}

func TestUsageStore_CurrentPeriodIdempotentUnderConcurrency(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CurrentPeriod(ctx, "user-1", testNow); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent first access: %v", err)
	}

	// A second read must see exactly one row's counters, all zero.
	p, err := store.CurrentPeriod(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("reread period: %v", err)
	}
	if p.Used(period.ResourceScout) != 0 {
		t.Errorf("scout = %d, want 0", p.Used(period.ResourceScout))
	}
}

func TestUsageStore_IncrementAndUsed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	if err := store.Increment(ctx, "user-1", period.ResourceScout, 1, testNow); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.Increment(ctx, "user-1", period.ResourceScout, 2, testNow); err != nil {
		t.Fatalf("increment: %v", err)
	}

	used, err := store.Used(ctx, "user-1", period.ResourceScout, testNow)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used != 3 {
		t.Errorf("used = %d, want 3", used)
	}

	// Other resources remain untouched.
	opus, err := store.Used(ctx, "user-1", period.ResourceOpus, testNow)
	if err != nil {
		t.Fatalf("used opus: %v", err)
	}
	if opus != 0 {
		t.Errorf("opus = %d, want 0", opus)
	}
}

func TestUsageStore_UsedZeroWithoutRow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	used, err := store.Used(ctx, "ghost", period.ResourceChats, testNow)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used != 0 {
		t.Errorf("used = %d, want 0", used)
	}
}

func TestUsageStore_IncrementRejectsUnknownResource(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	if err := store.Increment(ctx, "user-1", "scout2", 1, testNow); err == nil {
		t.Error("expected error for unknown resource")
	}
	if _, err := store.Used(ctx, "user-1", "scout2", testNow); err == nil {
		t.Error("expected error for unknown resource")
	}
}

func TestUsageStore_ConcurrentIncrementsLoseNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	const workers = 4
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := store.Increment(ctx, "user-1", period.ResourceChats, 1, testNow); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	used, err := store.Used(ctx, "user-1", period.ResourceChats, testNow)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used != workers*perWorker {
		t.Errorf("used = %d, want %d", used, workers*perWorker)
	}
}

func TestUsageStore_NewMonthStartsAtZero(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	if err := store.Increment(ctx, "user-1", period.ResourceSonnet, 5, testNow); err != nil {
		t.Fatalf("increment: %v", err)
	}

	nextMonth := testNow.AddDate(0, 1, 0)
	used, err := store.Used(ctx, "user-1", period.ResourceSonnet, nextMonth)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used != 0 {
		t.Errorf("used in new month = %d, want 0", used)
	}

	// The old period's row is untouched.
	old, err := store.Used(ctx, "user-1", period.ResourceSonnet, testNow)
	if err != nil {
		t.Fatalf("used old month: %v", err)
	}
	if old != 5 {
		t.Errorf("used in old month = %d, want 5", old)
	}
}

func TestUsageStore_OwnersIsolated(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	if err := store.Increment(ctx, "user-1", period.ResourceGPT5, 4, testNow); err != nil {
		t.Fatalf("increment: %v", err)
	}

	used, err := store.Used(ctx, "user-2", period.ResourceGPT5, testNow)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used != 0 {
		t.Errorf("user-2 used = %d, want 0", used)
	}
}
