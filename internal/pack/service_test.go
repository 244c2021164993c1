package pack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/shared"
)

type memoryPackStore struct {
	packages map[int64]Package
	nextID   int64
}

func newMemoryPackStore() *memoryPackStore {
	return &memoryPackStore{packages: make(map[int64]Package)}
}

func (m *memoryPackStore) Insert(ctx context.Context, in CreateInput) (Package, error) {
	m.nextID++
	p := Package{
		ID:              m.nextID,
		ConsolidationID: in.ConsolidationID,
		EntityID:        in.EntityID,
		LocalCurrency:   in.LocalCurrency,
		Status:          StatusDraft,
		Version:         1,
	}
	m.packages[p.ID] = p
	return p, nil
}

func (m *memoryPackStore) Get(ctx context.Context, id int64) (Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return Package{}, ErrPackageNotFound
	}
	return p, nil
}

func (m *memoryPackStore) ListByConsolidation(ctx context.Context, consolidationID int64) ([]Package, error) {
	var out []Package
	for _, p := range m.packages {
		if p.ConsolidationID == consolidationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryPackStore) ReplaceContents(ctx context.Context, p Package) (Package, error) {
	current, ok := m.packages[p.ID]
	if !ok {
		return Package{}, ErrPackageNotFound
	}
	if current.Version != p.Version {
		return Package{}, shared.ErrStaleVersion
	}
	p.Status = current.Status
	p.Version = current.Version + 1
	m.packages[p.ID] = p
	return p, nil
}

func (m *memoryPackStore) UpdateStatus(ctx context.Context, id, expectedVersion int64, status Status, reason string, at time.Time) (Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return Package{}, ErrPackageNotFound
	}
	if p.Version != expectedVersion {
		return Package{}, shared.ErrStaleVersion
	}
	p.Status = status
	p.RejectionReason = reason
	p.Version++
	switch status {
	case StatusSubmitted:
		p.SubmittedAt = &at
	case StatusValidated:
		p.ValidatedAt = &at
	}
	m.packages[id] = p
	return p, nil
}

func (m *memoryPackStore) SaveConverted(ctx context.Context, p Package) error {
	m.packages[p.ID] = p
	return nil
}

func TestPackageWorkflowHappyPath(t *testing.T) {
	svc := NewService(newMemoryPackStore())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, p.Status)

	p, err = svc.Submit(ctx, p.ID, p.Version)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, p.Status)
	require.NotNil(t, p.SubmittedAt)

	p, err = svc.Validate(ctx, p.ID, p.Version)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, p.Status)
}

func TestPackageRejectRequiresReason(t *testing.T) {
	svc := NewService(newMemoryPackStore())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)
	p, err = svc.Submit(ctx, p.ID, p.Version)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, p.ID, p.Version, "  ")
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err = svc.Reject(ctx, p.ID, p.Version, "missing intercompany detail")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, p.Status)
	require.Equal(t, "missing intercompany detail", p.RejectionReason)

	// rejected packages can be resubmitted
	p, err = svc.Submit(ctx, p.ID, p.Version)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, p.Status)
}

func TestPackageIllegalTransitions(t *testing.T) {
	svc := NewService(newMemoryPackStore())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)

	// DRAFT cannot be validated or rejected directly
	_, err = svc.Validate(ctx, p.ID, p.Version)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	_, err = svc.Reject(ctx, p.ID, p.Version, "nope")
	require.ErrorIs(t, err, shared.ErrWorkflow)
}

func TestValidatedPackageIsImmutable(t *testing.T) {
	store := newMemoryPackStore()
	svc := NewService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)
	p, err = svc.Submit(ctx, p.ID, p.Version)
	require.NoError(t, err)
	p, err = svc.Validate(ctx, p.ID, p.Version)
	require.NoError(t, err)

	_, err = svc.UpsertContents(ctx, p)
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestUpsertContentsChecksNetIncome(t *testing.T) {
	svc := NewService(newMemoryPackStore())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)

	p.TotalRevenueLocal = dec("500")
	p.TotalExpensesLocal = dec("400")
	p.NetIncomeLocal = dec("250")
	_, err = svc.UpsertContents(ctx, p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p.NetIncomeLocal = dec("100")
	updated, err := svc.UpsertContents(ctx, p)
	require.NoError(t, err)
	require.True(t, updated.NetIncomeLocal.Equal(dec("100")))
}

func TestStaleVersionSurfaces(t *testing.T) {
	svc := NewService(newMemoryPackStore())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{ConsolidationID: 1, EntityID: 2, LocalCurrency: "USD"})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, p.ID, p.Version+5)
	require.ErrorIs(t, err, shared.ErrStaleVersion)
}
