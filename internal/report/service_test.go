package report_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/report"
	"github.com/groupledger/groupledger/internal/shared"
)

type memoryStore struct {
	nextID  int64
	reports map[int64]report.ConsolidatedReport
	exports []report.Export
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, reports: map[int64]report.ConsolidatedReport{}}
}

func (m *memoryStore) Insert(_ context.Context, rep report.ConsolidatedReport) (report.ConsolidatedReport, error) {
	rep.ID = m.nextID
	rep.Version = 1
	m.nextID++
	m.reports[rep.ID] = rep
	return rep, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (report.ConsolidatedReport, error) {
	rep, ok := m.reports[id]
	if !ok {
		return report.ConsolidatedReport{}, fmt.Errorf("%w: %w", report.ErrReportNotFound, shared.ErrNotFound)
	}
	return rep, nil
}

func (m *memoryStore) ListByConsolidation(_ context.Context, consolidationID int64) ([]report.ConsolidatedReport, error) {
	var out []report.ConsolidatedReport
	for _, rep := range m.reports {
		if rep.ConsolidationID == consolidationID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (m *memoryStore) NextRevision(_ context.Context, consolidationID int64, typ report.Type) (int, error) {
	max := 0
	for _, rep := range m.reports {
		if rep.ConsolidationID == consolidationID && rep.Type == typ && rep.Revision > max {
			max = rep.Revision
		}
	}
	return max + 1, nil
}

func (m *memoryStore) Finalize(_ context.Context, id, expectedVersion int64, at time.Time) (report.ConsolidatedReport, error) {
	rep, ok := m.reports[id]
	if !ok {
		return report.ConsolidatedReport{}, fmt.Errorf("%w: %w", report.ErrReportNotFound, shared.ErrNotFound)
	}
	if rep.Version != expectedVersion {
		return report.ConsolidatedReport{}, fmt.Errorf("%w: report %d", shared.ErrStaleVersion, id)
	}
	rep.IsFinal = true
	rep.FinalizedAt = &at
	rep.Version++
	m.reports[id] = rep
	return rep, nil
}

func (m *memoryStore) SaveExport(_ context.Context, exp report.Export) error {
	m.exports = append(m.exports, exp)
	return nil
}

type fakeRuns struct {
	run consolidation.Consolidation
}

func (f *fakeRuns) Get(context.Context, int64) (consolidation.Consolidation, error) {
	return f.run, nil
}

type fakeSummaries struct{}

func (fakeSummaries) Summary(_ context.Context, consolidationID int64) (reconciliation.Summary, error) {
	return reconciliation.Summary{ConsolidationID: consolidationID}, nil
}

type fakeRenderer struct {
	calls int
	fail  error
}

func (f *fakeRenderer) Render(_ context.Context, rep report.ConsolidatedReport, format report.Format) (string, error) {
	f.calls++
	if f.fail != nil {
		return "", f.fail
	}
	return fmt.Sprintf("/artifacts/%d.%s", rep.ID, format), nil
}

func validatedRun() consolidation.Consolidation {
	return consolidation.Consolidation{
		ID:       7,
		Name:     "FY25 close",
		Currency: "EUR",
		Status:   consolidation.StatusValidated,
		Aggregate: consolidation.Aggregate{
			TotalAssets:      decimal.NewFromInt(1000),
			TotalLiabilities: decimal.NewFromInt(400),
			TotalEquity:      decimal.NewFromInt(600),
		},
	}
}

func newTestService(store *memoryStore, runs *fakeRuns, renderer *fakeRenderer) *report.Service {
	svc := report.NewService(store, runs, fakeSummaries{}, renderer, slog.Default())
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestGenerateIncrementsRevision(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &fakeRuns{run: validatedRun()}, &fakeRenderer{})

	first, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.NoError(t, err)
	require.Equal(t, 1, first.Revision)
	require.False(t, first.IsFinal)

	second, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.NoError(t, err)
	require.Equal(t, 2, second.Revision)

	// A different statement starts its own revision sequence.
	income, err := svc.Generate(context.Background(), 7, report.TypeIncomeStatement)
	require.NoError(t, err)
	require.Equal(t, 1, income.Revision)
}

func TestGenerateRequiresValidatedRun(t *testing.T) {
	run := validatedRun()
	run.Status = consolidation.StatusInProgress
	svc := newTestService(newMemoryStore(), &fakeRuns{run: run}, &fakeRenderer{})

	_, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.ErrorIs(t, err, report.ErrRunNotFinalized)
}

func TestGeneratePublishedRunAllowed(t *testing.T) {
	run := validatedRun()
	run.Status = consolidation.StatusPublished
	svc := newTestService(newMemoryStore(), &fakeRuns{run: run}, &fakeRenderer{})

	_, err := svc.Generate(context.Background(), 7, report.TypeNotes)
	require.NoError(t, err)
}

func TestFinalizeFreezesReport(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &fakeRuns{run: validatedRun()}, &fakeRenderer{})

	rep, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.NoError(t, err)

	final, err := svc.Finalize(context.Background(), rep.ID, rep.Version)
	require.NoError(t, err)
	require.True(t, final.IsFinal)
	require.NotNil(t, final.FinalizedAt)

	_, err = svc.Finalize(context.Background(), rep.ID, final.Version)
	require.ErrorIs(t, err, shared.ErrWorkflow)
	require.ErrorIs(t, err, report.ErrReportFinal)

	// Finalization never blocks new revisions of the same statement.
	next, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.NoError(t, err)
	require.Equal(t, rep.Revision+1, next.Revision)
}

func TestExportRecordsArtifact(t *testing.T) {
	store := newMemoryStore()
	renderer := &fakeRenderer{}
	svc := newTestService(store, &fakeRuns{run: validatedRun()}, renderer)

	rep, err := svc.Generate(context.Background(), 7, report.TypeBalanceSheet)
	require.NoError(t, err)

	exp, err := svc.Export(context.Background(), rep.ID, report.FormatPDF)
	require.NoError(t, err)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, fmt.Sprintf("/artifacts/%d.pdf", rep.ID), exp.DownloadURL)

	_, err = uuid.Parse(exp.ID)
	require.NoError(t, err)
	require.Len(t, store.exports, 1)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	renderer := &fakeRenderer{}
	svc := newTestService(newMemoryStore(), &fakeRuns{run: validatedRun()}, renderer)

	_, err := svc.Export(context.Background(), 1, report.Format("docx"))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, renderer.calls)
}
