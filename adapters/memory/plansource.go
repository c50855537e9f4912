package memory

import (
	"context"
	"sync"

	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

// PlanSource is an in-memory implementation of ports.PlanSource with a
// fixed owner-to-plan assignment and a default plan for everyone else.
type PlanSource struct {
	mu          sync.RWMutex
	defaultPlan plan.Plan
	assignments map[string]plan.Plan
}

// NewPlanSource creates a plan source that answers defaultPlan for any
// owner without an explicit assignment.
func NewPlanSource(defaultPlan plan.Plan) *PlanSource {
	return &PlanSource{
		defaultPlan: defaultPlan,
		assignments: make(map[string]plan.Plan),
	}
}

// SetDefault replaces the default plan. Called on config reload.
func (s *PlanSource) SetDefault(p plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPlan = p
}

// Assign binds an owner to a plan.
func (s *PlanSource) Assign(owner string, p plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[owner] = p
}

// PlanFor returns the owner's current plan.
func (s *PlanSource) PlanFor(ctx context.Context, owner string) (plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.assignments[owner]; ok {
		return p, nil
	}
	return s.defaultPlan, nil
}

// Ensure interface compliance.
var _ ports.PlanSource = (*PlanSource)(nil)
