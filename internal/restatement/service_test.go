package restatement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/shared"
)

type memoryStore struct {
	nextID int64
	items  map[int64]Restatement
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: map[int64]Restatement{}}
}

func (m *memoryStore) Insert(_ context.Context, r Restatement) (Restatement, error) {
	m.nextID++
	r.ID = m.nextID
	r.Version = 1
	m.items[r.ID] = r
	return r, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (Restatement, error) {
	r, ok := m.items[id]
	if !ok {
		return Restatement{}, ErrRestatementNotFound
	}
	return r, nil
}

func (m *memoryStore) ListByConsolidation(_ context.Context, consolidationID int64) ([]Restatement, error) {
	var out []Restatement
	for _, r := range m.items {
		if r.ConsolidationID == consolidationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) Update(_ context.Context, r Restatement, expectedVersion int64) (Restatement, error) {
	current, ok := m.items[r.ID]
	if !ok {
		return Restatement{}, ErrRestatementNotFound
	}
	if current.Version != expectedVersion {
		return Restatement{}, shared.ErrStaleVersion
	}
	r.Status = current.Status
	r.Version = current.Version + 1
	m.items[r.ID] = r
	return r, nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id, expectedVersion int64, status Status) (Restatement, error) {
	current, ok := m.items[id]
	if !ok {
		return Restatement{}, ErrRestatementNotFound
	}
	if current.Version != expectedVersion {
		return Restatement{}, shared.ErrStaleVersion
	}
	current.Status = status
	current.Version++
	m.items[id] = current
	return current, nil
}

func (m *memoryStore) ListRecurringValidated(_ context.Context, consolidationID int64) ([]Restatement, error) {
	var out []Restatement
	for _, r := range m.items {
		if r.ConsolidationID == consolidationID && r.IsRecurring && r.Status == StatusValidated {
			out = append(out, r)
		}
	}
	return out, nil
}

func draftRestatement(entityID int64) Restatement {
	r := validated(entityID, "100", "80", "20", "0", "0", "0")
	r.Status = StatusDraft
	r.Lines = balancedLines("100")
	return r
}

func TestServiceCreateForcesDraft(t *testing.T) {
	svc := NewService(newMemoryStore(), nil)

	r := draftRestatement(10)
	r.Status = StatusValidated
	created, err := svc.Create(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, created.Status)
}

func TestServiceTransitionRejectsIllegalStep(t *testing.T) {
	svc := NewService(newMemoryStore(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, draftRestatement(10))
	require.NoError(t, err)

	validatedEntry, err := svc.Transition(ctx, created.ID, created.Version, StatusValidated)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, validatedEntry.ID, validatedEntry.Version, StatusDraft)
	require.ErrorIs(t, err, shared.ErrWorkflow)
}

func TestServiceUpdateOnlyInDraft(t *testing.T) {
	svc := NewService(newMemoryStore(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, draftRestatement(10))
	require.NoError(t, err)
	validatedEntry, err := svc.Transition(ctx, created.ID, created.Version, StatusValidated)
	require.NoError(t, err)

	_, err = svc.Update(ctx, validatedEntry, validatedEntry.Version)
	require.ErrorIs(t, err, shared.ErrWorkflow)
}

func TestServiceProposeRecurring(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	recurring := draftRestatement(10)
	recurring.IsRecurring = true
	created, err := svc.Create(ctx, recurring)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, created.ID, created.Version, StatusValidated)
	require.NoError(t, err)

	oneOff := draftRestatement(20)
	createdOneOff, err := svc.Create(ctx, oneOff)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, createdOneOff.ID, createdOneOff.Version, StatusValidated)
	require.NoError(t, err)

	proposed, err := svc.ProposeRecurring(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, proposed, 1)
	require.Equal(t, StatusDraft, proposed[0].Status)
	require.Equal(t, int64(2), proposed[0].ConsolidationID)
	require.NotNil(t, proposed[0].SourceRestatementID)
	require.Equal(t, created.ID, *proposed[0].SourceRestatementID)

	// the proposal does not apply until validated again
	impacts := NewLedger().Impacts(proposed)
	require.Empty(t, impacts)
}
