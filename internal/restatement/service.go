package restatement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Insert(ctx context.Context, r Restatement) (Restatement, error)
	Get(ctx context.Context, id int64) (Restatement, error)
	ListByConsolidation(ctx context.Context, consolidationID int64) ([]Restatement, error)
	Update(ctx context.Context, r Restatement, expectedVersion int64) (Restatement, error)
	UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status) (Restatement, error)
	ListRecurringValidated(ctx context.Context, consolidationID int64) ([]Restatement, error)
}

// Service manages restatements and their workflow.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create inserts a new DRAFT restatement.
func (s *Service) Create(ctx context.Context, r Restatement) (Restatement, error) {
	r.Status = StatusDraft
	if err := r.Validate(); err != nil {
		return Restatement{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.Insert(ctx, r)
}

// Get returns one restatement.
func (s *Service) Get(ctx context.Context, id int64) (Restatement, error) {
	return s.store.Get(ctx, id)
}

// List returns the restatements of a run.
func (s *Service) List(ctx context.Context, consolidationID int64) ([]Restatement, error) {
	return s.store.ListByConsolidation(ctx, consolidationID)
}

// Update replaces the deltas and lines of a DRAFT restatement.
func (s *Service) Update(ctx context.Context, r Restatement, expectedVersion int64) (Restatement, error) {
	current, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return Restatement{}, err
	}
	if current.Status != StatusDraft {
		return Restatement{}, fmt.Errorf("%w: %w", shared.ErrWorkflow, ErrNotDraft)
	}
	r.ConsolidationID = current.ConsolidationID
	r.EntityID = current.EntityID
	if err := r.Validate(); err != nil {
		return Restatement{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.Update(ctx, r, expectedVersion)
}

// Transition moves a restatement through its workflow. Validation re-checks
// the balance of the supporting lines.
func (s *Service) Transition(ctx context.Context, id, expectedVersion int64, target Status) (Restatement, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Restatement{}, err
	}
	if !CanTransition(current.Status, target) {
		return Restatement{}, fmt.Errorf("%w: restatement cannot move from %s to %s",
			shared.ErrWorkflow, current.Status, target)
	}
	if target == StatusValidated {
		if err := current.Balanced(); err != nil {
			return Restatement{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
	}
	return s.store.UpdateStatus(ctx, id, expectedVersion, target)
}

// ProposeRecurring carries the recurring validated restatements of a prior
// run forward into a new run as DRAFT copies. Each copy must be validated
// again before it applies.
func (s *Service) ProposeRecurring(ctx context.Context, fromConsolidationID, toConsolidationID int64) ([]Restatement, error) {
	recurring, err := s.store.ListRecurringValidated(ctx, fromConsolidationID)
	if err != nil {
		return nil, err
	}
	proposed := make([]Restatement, 0, len(recurring))
	for _, prior := range recurring {
		sourceID := prior.ID
		copyEntry := prior
		copyEntry.ID = 0
		copyEntry.ConsolidationID = toConsolidationID
		copyEntry.Status = StatusDraft
		copyEntry.SourceRestatementID = &sourceID
		copyEntry.Version = 0
		inserted, err := s.store.Insert(ctx, copyEntry)
		if err != nil {
			return nil, err
		}
		proposed = append(proposed, inserted)
	}
	if s.logger != nil {
		s.logger.Info("recurring restatements proposed",
			slog.Int64("from_consolidation_id", fromConsolidationID),
			slog.Int64("to_consolidation_id", toConsolidationID),
			slog.Int("count", len(proposed)))
	}
	return proposed, nil
}
