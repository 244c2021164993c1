package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/reconciliation"
	"github.com/groupledger/groupledger/internal/shared"
)

// Store describes the persistence behaviour required by the service.
type Store interface {
	Insert(ctx context.Context, rep ConsolidatedReport) (ConsolidatedReport, error)
	Get(ctx context.Context, id int64) (ConsolidatedReport, error)
	ListByConsolidation(ctx context.Context, consolidationID int64) ([]ConsolidatedReport, error)
	NextRevision(ctx context.Context, consolidationID int64, typ Type) (int, error)
	Finalize(ctx context.Context, id, expectedVersion int64, at time.Time) (ConsolidatedReport, error)
	SaveExport(ctx context.Context, exp Export) error
}

// RunSource reads the consolidation a report is generated from.
type RunSource interface {
	Get(ctx context.Context, id int64) (consolidation.Consolidation, error)
}

// SummarySource reads the reconciliation summary of a run.
type SummarySource interface {
	Summary(ctx context.Context, consolidationID int64) (reconciliation.Summary, error)
}

// Renderer turns a report into a downloadable artifact.
type Renderer interface {
	Render(ctx context.Context, rep ConsolidatedReport, format Format) (string, error)
}

// Service owns report generation, finalization and export.
type Service struct {
	store     Store
	runs      RunSource
	summaries SummarySource
	builder   *Builder
	renderer  Renderer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, runs RunSource, summaries SummarySource, renderer Renderer, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		runs:      runs,
		summaries: summaries,
		builder:   NewBuilder(),
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Generate assembles a new revision of one statement for a run. Only
// validated or published runs can be reported on.
func (s *Service) Generate(ctx context.Context, consolidationID int64, typ Type) (ConsolidatedReport, error) {
	if !typ.Valid() {
		return ConsolidatedReport{}, fmt.Errorf("%w: %w: %s", shared.ErrValidation, ErrUnknownType, typ)
	}
	run, err := s.runs.Get(ctx, consolidationID)
	if err != nil {
		return ConsolidatedReport{}, err
	}
	if run.Status != consolidation.StatusValidated && run.Status != consolidation.StatusPublished {
		return ConsolidatedReport{}, fmt.Errorf("%w: %w: status %s",
			shared.ErrWorkflow, ErrRunNotFinalized, run.Status)
	}
	summary, err := s.summaries.Summary(ctx, consolidationID)
	if err != nil {
		return ConsolidatedReport{}, fmt.Errorf("load reconciliation summary: %w", err)
	}
	rep, err := s.builder.Build(typ, Inputs{Consolidation: run, Reconciliation: summary})
	if err != nil {
		return ConsolidatedReport{}, err
	}
	revision, err := s.store.NextRevision(ctx, consolidationID, typ)
	if err != nil {
		return ConsolidatedReport{}, err
	}
	rep.Revision = revision
	rep.GeneratedAt = s.now().UTC()
	created, err := s.store.Insert(ctx, rep)
	if err != nil {
		return ConsolidatedReport{}, err
	}
	s.logger.Info("report generated",
		slog.Int64("consolidation_id", consolidationID),
		slog.String("type", string(typ)),
		slog.Int("revision", created.Revision))
	return created, nil
}

// Get fetches one report with its exports.
func (s *Service) Get(ctx context.Context, id int64) (ConsolidatedReport, error) {
	return s.store.Get(ctx, id)
}

// List returns every report of a run, newest revision first per type.
func (s *Service) List(ctx context.Context, consolidationID int64) ([]ConsolidatedReport, error) {
	return s.store.ListByConsolidation(ctx, consolidationID)
}

// Finalize freezes a report. Finalized content never changes; further
// Generate calls produce a new revision instead.
func (s *Service) Finalize(ctx context.Context, id, expectedVersion int64) (ConsolidatedReport, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return ConsolidatedReport{}, err
	}
	if current.IsFinal {
		return ConsolidatedReport{}, fmt.Errorf("%w: %w", shared.ErrWorkflow, ErrReportFinal)
	}
	return s.store.Finalize(ctx, id, expectedVersion, s.now().UTC())
}

// Export renders the report in the requested format and records the artifact.
func (s *Service) Export(ctx context.Context, id int64, format Format) (Export, error) {
	if !format.Valid() {
		return Export{}, fmt.Errorf("%w: %w: %s", shared.ErrValidation, ErrUnknownFormat, format)
	}
	rep, err := s.store.Get(ctx, id)
	if err != nil {
		return Export{}, err
	}
	url, err := s.renderer.Render(ctx, rep, format)
	if err != nil {
		return Export{}, fmt.Errorf("render report %d: %w", id, err)
	}
	exp := Export{
		ID:          uuid.NewString(),
		ReportID:    id,
		Format:      format,
		DownloadURL: url,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.SaveExport(ctx, exp); err != nil {
		return Export{}, err
	}
	return exp, nil
}
