package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/groupledger/groupledger/jobs"
)

// RecalcQueue is the slice of the job client the command depends on.
type RecalcQueue interface {
	EnqueueRecalculate(ctx context.Context, payload jobs.RecalculatePayload) (*asynq.TaskInfo, error)
}

// ConsolOpsCLI exposes helpers for managing consolidation recalculations.
type ConsolOpsCLI struct {
	queue RecalcQueue
}

// NewConsolOpsCLI constructs the helper wired to the given queue.
func NewConsolOpsCLI(queue RecalcQueue) *ConsolOpsCLI {
	return &ConsolOpsCLI{queue: queue}
}

// RecalculateOptions defines available flags for the consol recalc command.
type RecalculateOptions struct {
	ConsolidationID int64
	ExpectedVersion int64
	Stdout          io.Writer
	Stderr          io.Writer
}

// RecalculateCommand enqueues one recalculation.
func (c *ConsolOpsCLI) RecalculateCommand(ctx context.Context, opts RecalculateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.ConsolidationID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "consol recalc: --id is required and must be positive")
		return 1
	}
	if opts.ExpectedVersion <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "consol recalc: --version is required and must be positive")
		return 1
	}

	info, err := c.queue.EnqueueRecalculate(ctx, jobs.RecalculatePayload{
		ConsolidationID: opts.ConsolidationID,
		ExpectedVersion: opts.ExpectedVersion,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consol recalc: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s for consolidation %d\n", info.ID, opts.ConsolidationID)
	return 0
}
