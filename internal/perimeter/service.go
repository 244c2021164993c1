package perimeter

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groupledger/groupledger/internal/shared"
)

// statusTransitions is the forward-only perimeter lifecycle table.
var statusTransitions = map[Status]Status{
	StatusDraft:      StatusInProgress,
	StatusInProgress: StatusSubmitted,
	StatusSubmitted:  StatusValidated,
	StatusValidated:  StatusPublished,
	StatusPublished:  StatusArchived,
}

// CanTransition reports whether from -> to is a legal perimeter step.
func CanTransition(from, to Status) bool {
	next, ok := statusTransitions[from]
	return ok && next == to
}

// Store describes the persistence behaviour required by the service.
type Store interface {
	InsertPerimeter(ctx context.Context, in CreatePerimeterInput) (Perimeter, error)
	GetPerimeter(ctx context.Context, id int64) (Perimeter, error)
	ListPerimeters(ctx context.Context, limit, offset int) ([]Perimeter, error)
	CountPerimeters(ctx context.Context) (int, error)
	UpdatePerimeterStatus(ctx context.Context, id, expectedVersion int64, status Status) (Perimeter, error)

	InsertEntity(ctx context.Context, in CreateEntityInput) (Entity, error)
	GetEntity(ctx context.Context, id int64) (Entity, error)
	ListEntities(ctx context.Context, perimeterID int64) ([]Entity, error)
	UpdateEntityOwnership(ctx context.Context, e Entity) (Entity, error)
	DeactivateEntity(ctx context.Context, id, expectedVersion int64, disposalDate time.Time) (Entity, error)
	EntityReferencedByRun(ctx context.Context, id int64) (bool, error)
	DeleteEntity(ctx context.Context, id, expectedVersion int64) error

	InsertParticipation(ctx context.Context, in CreateParticipationInput) (Participation, error)
	GetParticipation(ctx context.Context, id int64) (Participation, error)
	ListParticipations(ctx context.Context, perimeterID int64) ([]Participation, error)
	AppendOwnershipChange(ctx context.Context, participationID, expectedVersion int64, change OwnershipChange) (Participation, error)
}

// Service manages perimeters, their entities, and participations.
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

// CreatePerimeter validates and inserts a new perimeter in DRAFT status.
func (s *Service) CreatePerimeter(ctx context.Context, in CreatePerimeterInput) (Perimeter, error) {
	if err := in.Validate(); err != nil {
		return Perimeter{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.InsertPerimeter(ctx, in)
}

// GetPerimeter fetches one perimeter.
func (s *Service) GetPerimeter(ctx context.Context, id int64) (Perimeter, error) {
	return s.store.GetPerimeter(ctx, id)
}

// ListPerimeters returns one page of perimeters with listing metadata.
func (s *Service) ListPerimeters(ctx context.Context, page, perPage int) ([]Perimeter, shared.Pagination, error) {
	total, err := s.store.CountPerimeters(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	meta := shared.NewPagination(page, perPage, total)
	perimeters, err := s.store.ListPerimeters(ctx, meta.PerPage, meta.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return perimeters, meta, nil
}

// Transition advances a perimeter to the requested status. The move must be
// the single legal next step and the caller's version must match storage.
func (s *Service) Transition(ctx context.Context, id, expectedVersion int64, to Status) (Perimeter, error) {
	current, err := s.store.GetPerimeter(ctx, id)
	if err != nil {
		return Perimeter{}, err
	}
	if !CanTransition(current.Status, to) {
		return Perimeter{}, fmt.Errorf("%w: perimeter %d cannot move %s -> %s",
			shared.ErrWorkflow, id, current.Status, to)
	}
	return s.store.UpdatePerimeterStatus(ctx, id, expectedVersion, to)
}

// AddEntity validates and inserts an entity into the perimeter.
func (s *Service) AddEntity(ctx context.Context, in CreateEntityInput) (Entity, error) {
	if err := in.Validate(); err != nil {
		return Entity{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	entity, err := s.store.InsertEntity(ctx, in)
	if err != nil {
		return Entity{}, err
	}
	// The new node must keep the forest valid; reject the insert otherwise.
	if _, err := s.BuildGraph(ctx, in.PerimeterID); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

// GetEntity fetches one entity.
func (s *Service) GetEntity(ctx context.Context, id int64) (Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// UpdateEntityOwnership mutates ownership figures on an entity, guarded by the
// version token. Disposal/acquisition dates travel with the update.
func (s *Service) UpdateEntityOwnership(ctx context.Context, e Entity) (Entity, error) {
	in := CreateEntityInput{
		PerimeterID:          e.PerimeterID,
		Code:                 e.Code,
		Currency:             e.Currency,
		ParentEntityID:       e.ParentEntityID,
		IsParent:             e.IsParent,
		DirectOwnershipPct:   e.DirectOwnershipPct,
		IndirectOwnershipPct: e.IndirectOwnershipPct,
		TotalOwnershipPct:    e.TotalOwnershipPct,
		ControlType:          e.ControlType,
		Method:               e.Method,
	}
	if err := in.Validate(); err != nil {
		return Entity{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	updated, err := s.store.UpdateEntityOwnership(ctx, e)
	if err != nil {
		return Entity{}, err
	}
	if _, err := s.BuildGraph(ctx, e.PerimeterID); err != nil {
		return Entity{}, err
	}
	return updated, nil
}

// DeactivateEntity soft-deactivates an entity. Entities referenced by a
// consolidation run are never hard-deleted.
func (s *Service) DeactivateEntity(ctx context.Context, id, expectedVersion int64) (Entity, error) {
	return s.store.DeactivateEntity(ctx, id, expectedVersion, s.now().UTC())
}

// DeleteEntity hard-deletes an entity that was never referenced by a
// consolidation run. Referenced entities return ErrEntityReferenced and must
// be soft-deactivated instead.
func (s *Service) DeleteEntity(ctx context.Context, id, expectedVersion int64) error {
	referenced, err := s.store.EntityReferencedByRun(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: entity %d", ErrEntityReferenced, id)
	}
	return s.store.DeleteEntity(ctx, id, expectedVersion)
}

// AddParticipation validates and inserts a participation edge.
func (s *Service) AddParticipation(ctx context.Context, in CreateParticipationInput) (Participation, error) {
	if err := in.Validate(); err != nil {
		return Participation{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if _, err := s.store.GetEntity(ctx, in.ParentEntityID); err != nil {
		return Participation{}, err
	}
	if _, err := s.store.GetEntity(ctx, in.SubsidiaryEntityID); err != nil {
		return Participation{}, err
	}
	return s.store.InsertParticipation(ctx, in)
}

// RecordOwnershipChange appends an ownership-change event to a participation.
// History is append-only: prior steps are kept, not overwritten.
func (s *Service) RecordOwnershipChange(ctx context.Context, participationID, expectedVersion int64, effectiveDate time.Time, newPct decimal.Decimal, reason string) (Participation, error) {
	if newPct.IsNegative() || newPct.GreaterThan(decimal.NewFromInt(100)) {
		return Participation{}, fmt.Errorf("%w: ownership pct out of range [0,100]", shared.ErrValidation)
	}
	p, err := s.store.GetParticipation(ctx, participationID)
	if err != nil {
		return Participation{}, err
	}
	change := OwnershipChange{
		ParticipationID: participationID,
		EffectiveDate:   effectiveDate,
		PreviousPct:     p.OwnershipPct,
		NewPct:          newPct,
		Reason:          reason,
		CreatedAt:       s.now().UTC(),
	}
	return s.store.AppendOwnershipChange(ctx, participationID, expectedVersion, change)
}

// BuildGraph loads the perimeter's entities and validates the ownership forest.
func (s *Service) BuildGraph(ctx context.Context, perimeterID int64) (*Graph, error) {
	entities, err := s.store.ListEntities(ctx, perimeterID)
	if err != nil {
		return nil, err
	}
	active := entities[:0]
	for _, e := range entities {
		if e.Active {
			active = append(active, e)
		}
	}
	return BuildGraph(active)
}

// ListParticipations returns the participations of a perimeter with history.
func (s *Service) ListParticipations(ctx context.Context, perimeterID int64) ([]Participation, error) {
	return s.store.ListParticipations(ctx, perimeterID)
}
