package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Insert(ctx context.Context, in CreateInput, currency string) (Consolidation, error)
	Get(ctx context.Context, id int64) (Consolidation, error)
	ListByPerimeter(ctx context.Context, perimeterID int64) ([]Consolidation, error)
	UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status, at time.Time) (Consolidation, error)
	CommitAggregate(ctx context.Context, id, expectedVersion int64, agg Aggregate, at time.Time) (Consolidation, error)
	SetAcknowledged(ctx context.Context, id, expectedVersion int64) (Consolidation, error)
}

// SummarySource supplies the reconciliation summary for the validate guard.
type SummarySource interface {
	Summary(ctx context.Context, consolidationID int64) (reconciliation.Summary, error)
}

// Service owns the run lifecycle and delegates recalculation to the
// orchestrator.
type Service struct {
	store      Store
	perimeters PerimeterSource
	packages   PackageSource
	summaries  SummarySource
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, perimeters PerimeterSource, packages PackageSource, summaries SummarySource, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		perimeters: perimeters,
		packages:   packages,
		summaries:  summaries,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// Create opens a DRAFT run over a perimeter, inheriting its currency.
func (s *Service) Create(ctx context.Context, in CreateInput) (Consolidation, error) {
	if err := in.Validate(); err != nil {
		return Consolidation{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	perim, err := s.perimeters.GetPerimeter(ctx, in.PerimeterID)
	if err != nil {
		return Consolidation{}, err
	}
	return s.store.Insert(ctx, in, perim.ConsolidationCurrency)
}

// Get returns one run.
func (s *Service) Get(ctx context.Context, id int64) (Consolidation, error) {
	return s.store.Get(ctx, id)
}

// ListByPerimeter returns the runs of a perimeter.
func (s *Service) ListByPerimeter(ctx context.Context, perimeterID int64) ([]Consolidation, error) {
	return s.store.ListByPerimeter(ctx, perimeterID)
}

// Start moves a DRAFT run to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	return s.transition(ctx, id, expectedVersion, StatusInProgress)
}

// Submit closes the data-entry phase. Every package of the run must be
// VALIDATED; the blockers are named otherwise.
func (s *Service) Submit(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	packages, err := s.packages.ListByConsolidation(ctx, id)
	if err != nil {
		return Consolidation{}, err
	}
	var blocking []int64
	for _, p := range packages {
		if p.Status != pack.StatusValidated {
			blocking = append(blocking, p.ID)
		}
	}
	if len(blocking) > 0 {
		sort.Slice(blocking, func(i, j int) bool { return blocking[i] < blocking[j] })
		return Consolidation{}, fmt.Errorf("%w: packages %v not validated", shared.ErrWorkflow, blocking)
	}
	return s.transition(ctx, id, expectedVersion, StatusSubmitted)
}

// Validate signs off the run. It requires a completed recalculation with
// generated eliminations and an attached reconciliation summary; pairs left
// unreconciled outside tolerance demand an explicit acknowledgement.
func (s *Service) Validate(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Consolidation{}, err
	}
	if c.RecalculatedAt == nil || c.EliminationsGeneratedAt == nil {
		return Consolidation{}, fmt.Errorf("%w: consolidation %d has no computed block, recalculate first",
			shared.ErrWorkflow, id)
	}
	summary, err := s.summaries.Summary(ctx, id)
	if err != nil {
		return Consolidation{}, err
	}
	if summary.UnreconciledOutsideTolerance > 0 && !c.UnreconciledAcknowledged {
		return Consolidation{}, fmt.Errorf("%w: %d pairs unreconciled outside tolerance, acknowledgement required",
			shared.ErrWorkflow, summary.UnreconciledOutsideTolerance)
	}
	return s.transition(ctx, id, expectedVersion, StatusValidated)
}

// Publish freezes the run. Only report generation remains possible after.
func (s *Service) Publish(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	return s.transition(ctx, id, expectedVersion, StatusPublished)
}

// Archive retires a published run.
func (s *Service) Archive(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	return s.transition(ctx, id, expectedVersion, StatusArchived)
}

// AcknowledgeUnreconciled records the explicit sign-off on pairs left
// outside tolerance.
func (s *Service) AcknowledgeUnreconciled(ctx context.Context, id, expectedVersion int64) (Consolidation, error) {
	return s.store.SetAcknowledged(ctx, id, expectedVersion)
}

func (s *Service) transition(ctx context.Context, id, expectedVersion int64, to Status) (Consolidation, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Consolidation{}, err
	}
	if !CanTransition(current.Status, to) {
		return Consolidation{}, fmt.Errorf("%w: consolidation cannot move from %s to %s",
			shared.ErrWorkflow, current.Status, to)
	}
	updated, err := s.store.UpdateStatus(ctx, id, expectedVersion, to, s.now().UTC())
	if err != nil {
		return Consolidation{}, err
	}
	if s.logger != nil {
		s.logger.Info("consolidation transitioned",
			slog.Int64("consolidation_id", id),
			slog.String("from", string(current.Status)),
			slog.String("to", string(to)))
	}
	return updated, nil
}
