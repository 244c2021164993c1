// Package jobs runs the background work of the service: consolidation
// recalculation and report rendering, both over Asynq.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidationRecalc recomputes the aggregate block of one run.
	TaskConsolidationRecalc = "consol:recalculate"
	// TaskReportRender exports one report artifact.
	TaskReportRender = "report:render"
)

// RecalculatePayload identifies the run to recompute. ExpectedVersion is the
// optimistic token read by the caller; a mismatch at commit time means a
// concurrent writer won and the job must not retry blindly.
type RecalculatePayload struct {
	ConsolidationID int64 `json:"consolidation_id"`
	ExpectedVersion int64 `json:"expected_version"`
}

// NewRecalculateTask constructs an Asynq task for one recalculation.
func NewRecalculateTask(payload RecalculatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidationRecalc, body, asynq.Queue(QueueDefault)), nil
}

// ReportRenderPayload identifies the report and format to export.
type ReportRenderPayload struct {
	ReportID int64  `json:"report_id"`
	Format   string `json:"format"`
}

// NewReportRenderTask constructs an Asynq task for one report export.
func NewReportRenderTask(payload ReportRenderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportRender, body, asynq.Queue(QueueDefault)), nil
}
