package consolidation

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/shared"
)

type fakeSummaries struct {
	summary reconciliation.Summary
}

func (f *fakeSummaries) Summary(context.Context, int64) (reconciliation.Summary, error) {
	return f.summary, nil
}

func newTestService(store *memoryConsolidationStore, packages *fakePackages, summaries *fakeSummaries) *Service {
	perims := &fakePerimeters{perim: perimeter.Perimeter{ID: 1, ConsolidationCurrency: "EUR"}}
	return NewService(store, perims, packages, summaries, nil)
}

func TestCanTransitionForwardOnly(t *testing.T) {
	order := []Status{StatusDraft, StatusInProgress, StatusSubmitted, StatusValidated, StatusPublished, StatusArchived}
	for i, from := range order {
		for j, to := range order {
			expected := j == i+1
			require.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSubmitNamesBlockingPackages(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, Status: StatusInProgress, Version: 2,
	}}
	packages := &fakePackages{packages: testPackages()}
	packages.packages[0].Status = pack.StatusSubmitted
	svc := newTestService(store, packages, &fakeSummaries{})

	_, err := svc.Submit(context.Background(), 1, 2)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.Contains(t, err.Error(), "[10]")
}

func TestSubmitWithRandomPackageStatuses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []pack.Status{pack.StatusDraft, pack.StatusSubmitted, pack.StatusValidated, pack.StatusRejected}
	for trial := 0; trial < 50; trial++ {
		packages := &fakePackages{packages: testPackages()}
		allValidated := true
		for i := range packages.packages {
			status := statuses[rng.Intn(len(statuses))]
			packages.packages[i].Status = status
			if status != pack.StatusValidated {
				allValidated = false
			}
		}
		store := &memoryConsolidationStore{current: Consolidation{ID: 1, Status: StatusInProgress, Version: 1}}
		svc := newTestService(store, packages, &fakeSummaries{})

		_, err := svc.Submit(context.Background(), 1, 1)
		if allValidated {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, shared.ErrWorkflow)
		}
	}
}

func TestValidateRequiresComputedBlock(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, Status: StatusSubmitted, Version: 3,
	}}
	svc := newTestService(store, &fakePackages{}, &fakeSummaries{})

	_, err := svc.Validate(context.Background(), 1, 3)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.Contains(t, err.Error(), "recalculate")
}

func TestValidateRequiresAcknowledgement(t *testing.T) {
	now := time.Now()
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, Status: StatusSubmitted, Version: 3,
		RecalculatedAt: &now, EliminationsGeneratedAt: &now,
	}}
	summaries := &fakeSummaries{summary: reconciliation.Summary{
		TotalPairs: 5, UnreconciledOutsideTolerance: 2,
	}}
	svc := newTestService(store, &fakePackages{}, summaries)

	_, err := svc.Validate(context.Background(), 1, 3)
	require.ErrorIs(t, err, shared.ErrWorkflow)

	acked, err := svc.AcknowledgeUnreconciled(context.Background(), 1, 3)
	require.NoError(t, err)

	validated, err := svc.Validate(context.Background(), 1, acked.Version)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, validated.Status)
	require.NotNil(t, validated.ValidatedAt)
}

func TestPublishIsTerminalForEdits(t *testing.T) {
	now := time.Now()
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, Status: StatusValidated, Version: 4,
		RecalculatedAt: &now, EliminationsGeneratedAt: &now,
	}}
	svc := newTestService(store, &fakePackages{}, &fakeSummaries{})

	published, err := svc.Publish(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, published.Status)

	// no path back
	_, err = svc.Submit(context.Background(), 1, published.Version)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.False(t, published.Status.Recalculable())
}

func TestTransitionStaleVersion(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, Status: StatusDraft, Version: 2,
	}}
	svc := newTestService(store, &fakePackages{}, &fakeSummaries{})

	_, err := svc.Start(context.Background(), 1, 1)
	require.ErrorIs(t, err, shared.ErrStaleVersion)
}
