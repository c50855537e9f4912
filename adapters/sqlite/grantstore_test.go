package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plutusfin/ledger/adapters/sqlite"
	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

func testGrant(id, owner, resource string, qty int64, expiresAt time.Time) plan.AddOnGrant {
	return plan.AddOnGrant{
		ID:           id,
		Owner:        owner,
		ResourceType: resource,
		Quantity:     qty,
		ExpiresAt:    expiresAt,
		Active:       true,
		CreatedAt:    testNow,
	}
}

func TestGrantStore_CreateAndListActive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewGrantStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, testGrant("g1", "user-1", "scout", 3, testNow.Add(720*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testGrant("g2", "user-1", "chats", 10, testNow.Add(720*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	grants, err := store.ListActive(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(grants) != 2 {
		t.Errorf("len = %d, want 2", len(grants))
	}
}

func TestGrantStore_ListActiveExcludesExpired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewGrantStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, testGrant("g1", "user-1", "scout", 3, testNow.Add(-time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testGrant("g2", "user-1", "scout", 5, testNow.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	grants, err := store.ListActive(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(grants) != 1 || grants[0].ID != "g2" {
		t.Errorf("grants = %+v, want only g2", grants)
	}
}

func TestGrantStore_Deactivate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewGrantStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, testGrant("g1", "user-1", "scout", 3, testNow.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Deactivate(ctx, "g1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	grants, err := store.ListActive(ctx, "user-1", testNow)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("len = %d, want 0 after deactivate", len(grants))
	}
}

func TestGrantStore_DeactivateNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewGrantStore(db)
	ctx := context.Background()

	err := store.Deactivate(ctx, "nonexistent")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGrantStore_OwnersIsolated(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewGrantStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, testGrant("g1", "user-1", "scout", 3, testNow.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	grants, err := store.ListActive(ctx, "user-2", testNow)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("len = %d, want 0 for other owner", len(grants))
	}
}
