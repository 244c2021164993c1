package elimination

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	ReplaceAutomatic(ctx context.Context, consolidationID int64, entries []Entry) ([]Entry, error)
	InsertManual(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, consolidationID int64) ([]Entry, error)
	MarkValidated(ctx context.Context, id, expectedVersion int64) (Entry, error)
}

// Service generates and manages elimination entries.
type Service struct {
	store  Store
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, engine: NewEngine(), logger: logger, now: time.Now}
}

// Generate runs the engine over the validated package set and persists the
// result. Re-running is idempotent: prior automatic entries for the run are
// replaced, never duplicated, and manual entries are preserved.
func (s *Service) Generate(ctx context.Context, consolidationID int64, packages []pack.Package, graph *perimeter.Graph, participations []perimeter.Participation) (GenerationResult, error) {
	for _, p := range packages {
		if p.Status != pack.StatusValidated {
			return GenerationResult{}, fmt.Errorf("%w: package %d for entity %d is %s, not VALIDATED",
				shared.ErrWorkflow, p.ID, p.EntityID, p.Status)
		}
	}
	result := s.engine.Generate(consolidationID, packages, graph, participations)
	for _, entry := range result.Entries {
		if err := entry.Balanced(); err != nil {
			return GenerationResult{}, fmt.Errorf("elimination: generated entry %s: %w", entry.SourceKey, err)
		}
	}
	stored, err := s.store.ReplaceAutomatic(ctx, consolidationID, result.Entries)
	if err != nil {
		return GenerationResult{}, err
	}
	result.Entries = stored
	if s.logger != nil {
		s.logger.Info("eliminations generated",
			slog.Int64("consolidation_id", consolidationID),
			slog.Int("entries", len(result.Entries)),
			slog.Int("warnings", len(result.Warnings)))
	}
	return result, nil
}

// CreateManual inserts a hand-written entry after validation.
func (s *Service) CreateManual(ctx context.Context, entry Entry) (Entry, error) {
	entry.IsAutomatic = false
	entry.SourceKey = ""
	if err := entry.Validate(); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.InsertManual(ctx, entry)
}

// List returns all entries of a run, automatic and manual.
func (s *Service) List(ctx context.Context, consolidationID int64) ([]Entry, error) {
	return s.store.List(ctx, consolidationID)
}

// ValidateEntry flags an entry as reviewed.
func (s *Service) ValidateEntry(ctx context.Context, id, expectedVersion int64) (Entry, error) {
	return s.store.MarkValidated(ctx, id, expectedVersion)
}
