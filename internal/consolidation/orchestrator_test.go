package consolidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/elimination"
	"github.com/groupledger/groupledger/internal/fxrate"
	"github.com/groupledger/groupledger/internal/goodwill"
	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/restatement"
	"github.com/groupledger/groupledger/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// unitRates answers every lookup with a flat rate of one.
type unitRates struct {
	fail map[string]error
}

func (u unitRates) Lookup(_ context.Context, from, to string, _ time.Time) (fxrate.Quote, error) {
	if err, ok := u.fail[from]; ok {
		return fxrate.Quote{}, err
	}
	one := decimal.NewFromInt(1)
	return fxrate.Quote{From: from, To: to, Closing: one, Average: one, Historical: one}, nil
}

type fakePerimeters struct {
	perim          perimeter.Perimeter
	graph          *perimeter.Graph
	participations []perimeter.Participation
}

func (f *fakePerimeters) GetPerimeter(context.Context, int64) (perimeter.Perimeter, error) {
	return f.perim, nil
}
func (f *fakePerimeters) BuildGraph(context.Context, int64) (*perimeter.Graph, error) {
	return f.graph, nil
}
func (f *fakePerimeters) ListParticipations(context.Context, int64) ([]perimeter.Participation, error) {
	return f.participations, nil
}

type fakePackages struct {
	packages []pack.Package
	saved    []pack.Package
}

func (f *fakePackages) ListByConsolidation(context.Context, int64) ([]pack.Package, error) {
	return f.packages, nil
}
func (f *fakePackages) SaveConverted(_ context.Context, p pack.Package) error {
	f.saved = append(f.saved, p)
	return nil
}

type fakeRestatements struct {
	restatements []restatement.Restatement
}

func (f *fakeRestatements) List(context.Context, int64) ([]restatement.Restatement, error) {
	return f.restatements, nil
}

type memoryEliminationStore struct {
	entries []elimination.Entry
}

func (m *memoryEliminationStore) ReplaceAutomatic(_ context.Context, _ int64, entries []elimination.Entry) ([]elimination.Entry, error) {
	m.entries = entries
	return entries, nil
}
func (m *memoryEliminationStore) InsertManual(_ context.Context, e elimination.Entry) (elimination.Entry, error) {
	m.entries = append(m.entries, e)
	return e, nil
}
func (m *memoryEliminationStore) List(context.Context, int64) ([]elimination.Entry, error) {
	return m.entries, nil
}
func (m *memoryEliminationStore) MarkValidated(context.Context, int64, int64) (elimination.Entry, error) {
	return elimination.Entry{}, elimination.ErrEntryNotFound
}

type memoryReconciliationStore struct {
	pairs []reconciliation.Reconciliation
}

func (m *memoryReconciliationStore) Replace(_ context.Context, _ int64, pairs []reconciliation.Reconciliation) ([]reconciliation.Reconciliation, error) {
	m.pairs = pairs
	return pairs, nil
}
func (m *memoryReconciliationStore) Get(context.Context, int64) (reconciliation.Reconciliation, error) {
	return reconciliation.Reconciliation{}, reconciliation.ErrReconciliationNotFound
}
func (m *memoryReconciliationStore) List(context.Context, int64) ([]reconciliation.Reconciliation, error) {
	return m.pairs, nil
}
func (m *memoryReconciliationStore) MarkReconciled(context.Context, int64, int64, string, string, time.Time) (reconciliation.Reconciliation, error) {
	return reconciliation.Reconciliation{}, reconciliation.ErrReconciliationNotFound
}

type memoryGoodwillStore struct {
	calcs []goodwill.Calculation
}

func (m *memoryGoodwillStore) Replace(_ context.Context, _ int64, calcs []goodwill.Calculation) ([]goodwill.Calculation, error) {
	m.calcs = calcs
	return calcs, nil
}
func (m *memoryGoodwillStore) Get(context.Context, int64) (goodwill.Calculation, error) {
	return goodwill.Calculation{}, goodwill.ErrCalculationNotFound
}
func (m *memoryGoodwillStore) List(context.Context, int64) ([]goodwill.Calculation, error) {
	return m.calcs, nil
}
func (m *memoryGoodwillStore) SaveImpairment(context.Context, goodwill.Calculation, int64, goodwill.ImpairmentTest) (goodwill.Calculation, error) {
	return goodwill.Calculation{}, goodwill.ErrCalculationNotFound
}
func (m *memoryGoodwillStore) ListImpairments(context.Context, int64) ([]goodwill.ImpairmentTest, error) {
	return nil, nil
}

type memoryConsolidationStore struct {
	current Consolidation
	commits int
}

func (m *memoryConsolidationStore) Insert(_ context.Context, in CreateInput, currency string) (Consolidation, error) {
	m.current = Consolidation{ID: 1, PerimeterID: in.PerimeterID, Name: in.Name,
		Currency: currency, PeriodEnd: in.PeriodEnd, Status: StatusDraft, Version: 1}
	return m.current, nil
}
func (m *memoryConsolidationStore) Get(context.Context, int64) (Consolidation, error) {
	return m.current, nil
}
func (m *memoryConsolidationStore) ListByPerimeter(context.Context, int64) ([]Consolidation, error) {
	return []Consolidation{m.current}, nil
}
func (m *memoryConsolidationStore) UpdateStatus(_ context.Context, _, expectedVersion int64, status Status, at time.Time) (Consolidation, error) {
	if m.current.Version != expectedVersion {
		return Consolidation{}, shared.ErrStaleVersion
	}
	m.current.Status = status
	m.current.Version++
	switch status {
	case StatusSubmitted:
		m.current.SubmittedAt = &at
	case StatusValidated:
		m.current.ValidatedAt = &at
	case StatusPublished:
		m.current.PublishedAt = &at
	}
	return m.current, nil
}
func (m *memoryConsolidationStore) CommitAggregate(_ context.Context, _, expectedVersion int64, agg Aggregate, at time.Time) (Consolidation, error) {
	if m.current.Version != expectedVersion {
		return Consolidation{}, shared.ErrStaleVersion
	}
	m.current.Aggregate = agg
	m.current.RecalculatedAt = &at
	m.current.EliminationsGeneratedAt = &at
	if m.current.Status == StatusDraft {
		m.current.Status = StatusInProgress
	}
	m.current.Version++
	m.commits++
	return m.current, nil
}
func (m *memoryConsolidationStore) SetAcknowledged(_ context.Context, _, expectedVersion int64) (Consolidation, error) {
	if m.current.Version != expectedVersion {
		return Consolidation{}, shared.ErrStaleVersion
	}
	m.current.UnreconciledAcknowledged = true
	m.current.Version++
	return m.current, nil
}

func testGraph(t *testing.T) *perimeter.Graph {
	t.Helper()
	parentID := int64(10)
	graph, err := perimeter.BuildGraph([]perimeter.Entity{
		{ID: 10, Code: "HOLD", IsParent: true, Active: true,
			ControlType: perimeter.ControlExclusive, TotalOwnershipPct: dec("100")},
		{ID: 20, Code: "SUB", ParentEntityID: &parentID, Active: true,
			ControlType:        perimeter.ControlExclusive,
			DirectOwnershipPct: dec("80"), TotalOwnershipPct: dec("80")},
	})
	require.NoError(t, err)
	return graph
}

func validatedPackage(entityID int64, assets, liabilities, equity, revenue, expenses string, interco ...pack.IntercompanyBalance) pack.Package {
	return pack.Package{
		ID:                    entityID,
		ConsolidationID:       1,
		EntityID:              entityID,
		LocalCurrency:         "EUR",
		Status:                pack.StatusValidated,
		TotalAssetsLocal:      dec(assets),
		TotalLiabilitiesLocal: dec(liabilities),
		TotalEquityLocal:      dec(equity),
		TotalRevenueLocal:     dec(revenue),
		TotalExpensesLocal:    dec(expenses),
		NetIncomeLocal:        dec(revenue).Sub(dec(expenses)),
		Intercompany:          interco,
	}
}

func testPackages() []pack.Package {
	return []pack.Package{
		validatedPackage(10, "1000", "400", "600", "500", "300",
			pack.IntercompanyBalance{CounterpartyEntityID: 20, Type: pack.IntercoReceivable, AmountLocal: dec("50")}),
		validatedPackage(20, "500", "200", "300", "200", "100",
			pack.IntercompanyBalance{CounterpartyEntityID: 10, Type: pack.IntercoPayable, AmountLocal: dec("50")}),
	}
}

func testParticipations() []perimeter.Participation {
	return []perimeter.Participation{{
		ID:                     7,
		ParentEntityID:         10,
		SubsidiaryEntityID:     20,
		OwnershipPct:           dec("80"),
		AcquisitionCost:        dec("290"),
		FairValueAtAcquisition: dec("350"),
	}}
}

func newTestOrchestrator(t *testing.T, store *memoryConsolidationStore, packages *fakePackages,
	restatements []restatement.Restatement, rates unitRates) *Orchestrator {
	t.Helper()
	perims := &fakePerimeters{
		perim:          perimeter.Perimeter{ID: 1, ConsolidationCurrency: "EUR"},
		graph:          testGraph(t),
		participations: testParticipations(),
	}
	return NewOrchestrator(store, perims, packages,
		pack.NewTranslator(rates),
		&fakeRestatements{restatements: restatements},
		elimination.NewService(&memoryEliminationStore{}, nil),
		reconciliation.NewService(&memoryReconciliationStore{}, reconciliation.NewMatcher(nil), nil),
		goodwill.NewService(&memoryGoodwillStore{}, nil),
		nil)
}

func TestRecalculateAggregatesTotals(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 1, PeriodEnd: time.Now(),
	}}
	packages := &fakePackages{packages: testPackages()}
	orch := newTestOrchestrator(t, store, packages, nil, unitRates{})

	c, err := orch.Recalculate(context.Background(), 1, 1)
	require.NoError(t, err)

	// 1500 gross, minus 50 receivable/payable, minus 290 investment,
	// plus 10 goodwill carrying value
	require.True(t, c.Aggregate.TotalAssets.Equal(dec("1170")), "assets %s", c.Aggregate.TotalAssets)
	require.True(t, c.Aggregate.TotalLiabilities.Equal(dec("550")))
	// 900 gross equity minus 240 proportionate equity eliminated
	require.True(t, c.Aggregate.TotalEquity.Equal(dec("660")))
	require.True(t, c.Aggregate.TotalRevenue.Equal(dec("700")))
	require.True(t, c.Aggregate.TotalExpenses.Equal(dec("400")))
	require.True(t, c.Aggregate.MinorityInterests.Equal(dec("60")))
	require.True(t, c.Aggregate.MinorityNetIncome.Equal(dec("20")))
	require.True(t, c.Aggregate.GroupNetIncome.Equal(dec("280")))
	require.True(t, c.Aggregate.TotalGoodwill.Equal(dec("10")))
	require.Equal(t, StatusInProgress, c.Status)
	require.NotNil(t, c.RecalculatedAt)
	require.Len(t, packages.saved, 2)
	require.Equal(t, 1, store.commits)
}

func TestRecalculateAppliesRestatementDeltas(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusInProgress, Version: 1, PeriodEnd: time.Now(),
	}}
	packages := &fakePackages{packages: testPackages()}
	orch := newTestOrchestrator(t, store, packages, []restatement.Restatement{{
		ConsolidationID:  1,
		EntityID:         10,
		Type:             restatement.TypeLeaseCapitalization,
		Status:           restatement.StatusValidated,
		AssetsDelta:      dec("100"),
		LiabilitiesDelta: dec("100"),
	}}, unitRates{})

	c, err := orch.Recalculate(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, c.Aggregate.TotalAssets.Equal(dec("1270")))
	require.True(t, c.Aggregate.TotalLiabilities.Equal(dec("650")))
}

func TestRecalculateAppliesIncomeRestatementDeltas(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusInProgress, Version: 1, PeriodEnd: time.Now(),
	}}
	packages := &fakePackages{packages: testPackages()}
	orch := newTestOrchestrator(t, store, packages, []restatement.Restatement{{
		ConsolidationID: 1,
		EntityID:        10,
		Type:            restatement.TypeDepreciationMethod,
		Status:          restatement.StatusValidated,
		IncomeDelta:     dec("100"),
	}}, unitRates{})

	c, err := orch.Recalculate(context.Background(), 1, 1)
	require.NoError(t, err)
	// the parent is wholly owned, so the extra income is all group
	require.True(t, c.Aggregate.TotalRevenue.Equal(dec("800")), "revenue %s", c.Aggregate.TotalRevenue)
	require.True(t, c.Aggregate.TotalExpenses.Equal(dec("400")))
	require.True(t, c.Aggregate.MinorityNetIncome.Equal(dec("20")))
	require.True(t, c.Aggregate.GroupNetIncome.Equal(dec("380")), "group net income %s", c.Aggregate.GroupNetIncome)
}

func TestRecalculateSeedsGoodwillFromEquityResidual(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 1, PeriodEnd: time.Now(),
	}}
	participations := testParticipations()
	participations[0].FairValueAtAcquisition = decimal.Zero
	perims := &fakePerimeters{
		perim:          perimeter.Perimeter{ID: 1, ConsolidationCurrency: "EUR"},
		graph:          testGraph(t),
		participations: participations,
	}
	packages := &fakePackages{packages: testPackages()}
	orch := NewOrchestrator(store, perims, packages,
		pack.NewTranslator(unitRates{}),
		&fakeRestatements{},
		elimination.NewService(&memoryEliminationStore{}, nil),
		reconciliation.NewService(&memoryReconciliationStore{}, reconciliation.NewMatcher(nil), nil),
		goodwill.NewService(&memoryGoodwillStore{}, nil),
		nil)

	c, err := orch.Recalculate(context.Background(), 1, 1)
	require.NoError(t, err)
	// no recorded fair value: cost 290 minus 240 proportionate equity
	require.True(t, c.Aggregate.TotalGoodwill.Equal(dec("50")), "goodwill %s", c.Aggregate.TotalGoodwill)
	require.True(t, c.Aggregate.TotalAssets.Equal(dec("1210")), "assets %s", c.Aggregate.TotalAssets)
}

func TestRecalculateSplitsRestatedIncomeWithMinority(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusInProgress, Version: 1, PeriodEnd: time.Now(),
	}}
	packages := &fakePackages{packages: testPackages()}
	orch := newTestOrchestrator(t, store, packages, []restatement.Restatement{{
		ConsolidationID: 1,
		EntityID:        20,
		Type:            restatement.TypeDepreciationMethod,
		Status:          restatement.StatusValidated,
		IncomeDelta:     dec("100"),
	}}, unitRates{})

	c, err := orch.Recalculate(context.Background(), 1, 1)
	require.NoError(t, err)
	// 100 extra income on the 80%-owned subsidiary: 80 group, 20 minority
	require.True(t, c.Aggregate.TotalRevenue.Equal(dec("800")))
	require.True(t, c.Aggregate.MinorityNetIncome.Equal(dec("40")), "minority %s", c.Aggregate.MinorityNetIncome)
	require.True(t, c.Aggregate.GroupNetIncome.Equal(dec("360")), "group net income %s", c.Aggregate.GroupNetIncome)
}

func TestRecalculateFailsWhenOneTranslationFails(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 1, PeriodEnd: time.Now(),
	}}
	packages := &fakePackages{packages: testPackages()}
	packages.packages[1].LocalCurrency = "USD"
	rates := unitRates{fail: map[string]error{"USD": fxrate.ErrRateNotFound}}
	orch := newTestOrchestrator(t, store, packages, nil, rates)

	_, err := orch.Recalculate(context.Background(), 1, 1)
	require.ErrorIs(t, err, fxrate.ErrRateNotFound)
	require.Empty(t, packages.saved)
	require.Zero(t, store.commits)
}

func TestRecalculateRejectedAfterSubmission(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusSubmitted, Version: 3,
	}}
	orch := newTestOrchestrator(t, store, &fakePackages{packages: testPackages()}, nil, unitRates{})

	_, err := orch.Recalculate(context.Background(), 1, 3)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.ErrorIs(t, err, ErrNotRecalculable)
}

func TestRecalculateRejectsMissingPackage(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 1,
	}}
	packages := &fakePackages{packages: testPackages()[:1]}
	orch := newTestOrchestrator(t, store, packages, nil, unitRates{})

	_, err := orch.Recalculate(context.Background(), 1, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing packages")
	require.Zero(t, store.commits)
}

func TestRecalculateRejectsUnvalidatedPackage(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 1,
	}}
	packages := &fakePackages{packages: testPackages()}
	packages.packages[1].Status = pack.StatusDraft
	orch := newTestOrchestrator(t, store, packages, nil, unitRates{})

	_, err := orch.Recalculate(context.Background(), 1, 1)
	require.ErrorIs(t, err, shared.ErrWorkflow)
}

func TestRecalculateStaleVersionConflict(t *testing.T) {
	store := &memoryConsolidationStore{current: Consolidation{
		ID: 1, PerimeterID: 1, Status: StatusDraft, Version: 5,
	}}
	orch := newTestOrchestrator(t, store, &fakePackages{packages: testPackages()}, nil, unitRates{})

	_, err := orch.Recalculate(context.Background(), 1, 4)
	require.True(t, errors.Is(err, shared.ErrStaleVersion))
	require.Zero(t, store.commits)
}
