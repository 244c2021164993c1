package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Replace(ctx context.Context, consolidationID int64, pairs []Reconciliation) ([]Reconciliation, error)
	Get(ctx context.Context, id int64) (Reconciliation, error)
	List(ctx context.Context, consolidationID int64) ([]Reconciliation, error)
	MarkReconciled(ctx context.Context, id, expectedVersion int64, reason, action string, at time.Time) (Reconciliation, error)
}

// Service runs the matcher and manages sign-off.
type Service struct {
	store   Store
	matcher *Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, matcher *Matcher, logger *slog.Logger) *Service {
	return &Service{store: store, matcher: matcher, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run rebuilds the comparison set for a run from the translated packages.
// Prior pairs and their sign-off state are replaced.
func (s *Service) Run(ctx context.Context, consolidationID int64, packages []pack.Package) ([]Reconciliation, error) {
	pairs := s.matcher.Match(consolidationID, packages)
	stored, err := s.store.Replace(ctx, consolidationID, pairs)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("reconciliation pairs rebuilt",
			slog.Int64("consolidation_id", consolidationID),
			slog.Int("pairs", len(stored)))
	}
	return stored, nil
}

// AutoReconcile signs off every within-tolerance, unreconciled pair of a
// run. Pairs outside tolerance are never touched.
func (s *Service) AutoReconcile(ctx context.Context, consolidationID int64) (Summary, error) {
	pairs, err := s.store.List(ctx, consolidationID)
	if err != nil {
		return Summary{}, err
	}
	at := s.now().UTC()
	for i, pair := range pairs {
		if pair.IsReconciled || !pair.IsWithinTolerance {
			continue
		}
		updated, err := s.store.MarkReconciled(ctx, pair.ID, pair.Version, "", "auto-reconciled within tolerance", at)
		if err != nil {
			return Summary{}, err
		}
		pairs[i] = updated
	}
	return Summarize(consolidationID, pairs), nil
}

// Reconcile signs off one pair. Outside tolerance both a difference reason
// and the action taken are mandatory.
func (s *Service) Reconcile(ctx context.Context, id, expectedVersion int64, reason, action string) (Reconciliation, error) {
	pair, err := s.store.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	if pair.IsReconciled {
		return Reconciliation{}, fmt.Errorf("%w: %w", shared.ErrWorkflow, ErrAlreadyReconciled)
	}
	if !pair.IsWithinTolerance && (strings.TrimSpace(reason) == "" || strings.TrimSpace(action) == "") {
		return Reconciliation{}, fmt.Errorf("%w: %w", shared.ErrValidation, ErrReasonRequired)
	}
	return s.store.MarkReconciled(ctx, id, expectedVersion, reason, action, s.now().UTC())
}

// Summary condenses the current state of a run's pairs.
func (s *Service) Summary(ctx context.Context, consolidationID int64) (Summary, error) {
	pairs, err := s.store.List(ctx, consolidationID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(consolidationID, pairs), nil
}

// List returns the pairs of a run.
func (s *Service) List(ctx context.Context, consolidationID int64) ([]Reconciliation, error) {
	return s.store.List(ctx, consolidationID)
}
