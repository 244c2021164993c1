package pack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Insert(ctx context.Context, in CreateInput) (Package, error)
	Get(ctx context.Context, id int64) (Package, error)
	ListByConsolidation(ctx context.Context, consolidationID int64) ([]Package, error)
	ReplaceContents(ctx context.Context, p Package) (Package, error)
	UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status, reason string, at time.Time) (Package, error)
	SaveConverted(ctx context.Context, p Package) error
}

// Service owns the package workflow: DRAFT -> SUBMITTED -> VALIDATED | REJECTED.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a DRAFT package for one entity in a consolidation run.
func (s *Service) Create(ctx context.Context, in CreateInput) (Package, error) {
	if err := in.Validate(); err != nil {
		return Package{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.Insert(ctx, in)
}

// Get fetches one package with its lines and intercompany balances.
func (s *Service) Get(ctx context.Context, id int64) (Package, error) {
	return s.store.Get(ctx, id)
}

// ListByConsolidation returns every package of a run.
func (s *Service) ListByConsolidation(ctx context.Context, consolidationID int64) ([]Package, error) {
	return s.store.ListByConsolidation(ctx, consolidationID)
}

// SaveConverted persists a translator result for the package.
func (s *Service) SaveConverted(ctx context.Context, p Package) error {
	return s.store.SaveConverted(ctx, p)
}

// UpsertContents replaces the package's local-currency figures, lines, and
// intercompany declarations. Only DRAFT or REJECTED packages may change.
func (s *Service) UpsertContents(ctx context.Context, p Package) (Package, error) {
	current, err := s.store.Get(ctx, p.ID)
	if err != nil {
		return Package{}, err
	}
	if !current.Status.Editable() {
		return Package{}, fmt.Errorf("%w: %w: status %s", shared.ErrWorkflow, ErrNotEditable, current.Status)
	}
	if !p.NetIncomeLocal.Equal(p.TotalRevenueLocal.Sub(p.TotalExpensesLocal)) {
		return Package{}, fmt.Errorf("%w: net income must equal revenue minus expenses", shared.ErrValidation)
	}
	return s.store.ReplaceContents(ctx, p)
}

// Submit moves a package to SUBMITTED.
func (s *Service) Submit(ctx context.Context, id, expectedVersion int64) (Package, error) {
	return s.transition(ctx, id, expectedVersion, StatusSubmitted, "")
}

// Validate moves a package to VALIDATED; it then becomes an immutable input
// to aggregation.
func (s *Service) Validate(ctx context.Context, id, expectedVersion int64) (Package, error) {
	return s.transition(ctx, id, expectedVersion, StatusValidated, "")
}

// Reject returns a package to its submitting entity with a mandatory reason.
func (s *Service) Reject(ctx context.Context, id, expectedVersion int64, reason string) (Package, error) {
	if strings.TrimSpace(reason) == "" {
		return Package{}, fmt.Errorf("%w: %w", shared.ErrValidation, ErrReasonRequired)
	}
	return s.transition(ctx, id, expectedVersion, StatusRejected, reason)
}

func (s *Service) transition(ctx context.Context, id, expectedVersion int64, to Status, reason string) (Package, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if !CanTransition(current.Status, to) {
		return Package{}, fmt.Errorf("%w: package %d cannot move %s -> %s",
			shared.ErrWorkflow, id, current.Status, to)
	}
	return s.store.UpdateStatus(ctx, id, expectedVersion, to, reason, s.now().UTC())
}
