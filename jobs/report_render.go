package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/groupledger/groupledger/internal/report"
	"github.com/groupledger/groupledger/internal/shared"
)

// Exporter renders one report into a downloadable artifact.
type Exporter interface {
	Export(ctx context.Context, reportID int64, format report.Format) (report.Export, error)
}

// ReportRenderJob executes queued report exports.
type ReportRenderJob struct {
	Reports Exporter
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewReportRenderJob constructs the job handler.
func NewReportRenderJob(reports Exporter, logger *slog.Logger) *ReportRenderJob {
	return &ReportRenderJob{
		Reports: reports,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one queued export.
func (j *ReportRenderJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report render: handler not configured")
	}
	var payload ReportRenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ReportID <= 0 {
		return asynq.SkipRetry
	}

	logger := j.log().With(
		slog.Int64("report_id", payload.ReportID),
		slog.String("format", payload.Format))

	start := j.clock()
	exp, err := j.Reports.Export(ctx, payload.ReportID, report.Format(payload.Format))
	if err != nil {
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) {
			logger.Warn("export rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		logger.Error("export failed", slog.Any("error", err))
		return err
	}

	logger.Info("export completed",
		slog.String("download_url", exp.DownloadURL),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReportRenderJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportRender))
	}
	return slog.Default().With(slog.String("job", TaskReportRender))
}
