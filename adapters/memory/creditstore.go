package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plutusfin/ledger/domain/credit"
	"github.com/plutusfin/ledger/ports"
)

// CreditStore is an in-memory implementation of ports.CreditStore.
// Consume plans and applies under one mutex, so the apply can never
// lose a race and the no-partial-debit rule holds trivially.
type CreditStore struct {
	mu      sync.RWMutex
	credits map[string][]credit.Credit // owner -> insertion order
	idGen   ports.IDGenerator
}

// NewCreditStore creates a new in-memory credit store.
func NewCreditStore(idGen ports.IDGenerator) *CreditStore {
	return &CreditStore{
		credits: make(map[string][]credit.Credit),
		idGen:   idGen,
	}
}

// Grant inserts a new unused credit record.
func (s *CreditStore) Grant(ctx context.Context, c credit.Credit) error {
	if !c.Amount.IsPositive() {
		return credit.ErrNonPositiveAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credits[c.Owner] = append(s.credits[c.Owner], c)
	return nil
}

// Available sums unused, unexpired credit amounts for an owner.
func (s *CreditStore) Available(ctx context.Context, owner string, now time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return credit.AvailableTotal(s.credits[owner], now), nil
}

// Consume debits amount oldest-first, splitting the boundary record.
// Shortfall applies nothing.
func (s *CreditStore) Consume(ctx context.Context, owner string, amount decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.credits[owner]
	plan, err := credit.PlanConsumption(records, amount, now)
	if err != nil {
		return err
	}

	byID := make(map[string]int, len(records))
	for i, c := range records {
		byID[c.ID] = i
	}

	for _, id := range plan.FullUse {
		i := byID[id]
		usedAt := now
		records[i].Used = true
		records[i].UsedAt = &usedAt
	}

	if plan.Split != nil {
		i := byID[plan.Split.CreditID]
		original := records[i]

		usedAt := now
		records[i].Amount = plan.Split.UsedPortion
		records[i].Used = true
		records[i].UsedAt = &usedAt

		sibling := credit.Credit{
			ID:         s.idGen.New(),
			Owner:      original.Owner,
			Amount:     plan.Split.Remainder,
			Source:     original.Source,
			ReferralID: original.ReferralID,
			CreatedAt:  original.CreatedAt,
			ExpiresAt:  original.ExpiresAt,
		}
		records = append(records, sibling)
	}

	s.credits[owner] = records
	return nil
}

// ListByOwner returns the owner's credit history, oldest first.
func (s *CreditStore) ListByOwner(ctx context.Context, owner string) ([]credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]credit.Credit{}, s.credits[owner]...)
	credit.SortFIFO(out)
	return out, nil
}

// Clear removes all state (for testing).
func (s *CreditStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits = make(map[string][]credit.Credit)
}

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
