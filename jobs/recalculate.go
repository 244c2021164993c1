package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/shared"
)

// Recalculator runs the consolidation pipeline for one run.
type Recalculator interface {
	Recalculate(ctx context.Context, consolidationID, expectedVersion int64) (consolidation.Consolidation, error)
}

// RecalculateJob executes queued recalculations. A redis guard keeps at most
// one recalculation in flight per run; concurrent enqueues for the same run
// are rejected, not serialized.
type RecalculateJob struct {
	Orchestrator Recalculator
	Redis        *redis.Client
	Logger       *slog.Logger
	Timeout      time.Duration
	clock        func() time.Time
}

// NewRecalculateJob constructs the job handler.
func NewRecalculateJob(orchestrator Recalculator, rdb *redis.Client, logger *slog.Logger, timeout time.Duration) *RecalculateJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RecalculateJob{
		Orchestrator: orchestrator,
		Redis:        rdb,
		Logger:       logger,
		Timeout:      timeout,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func guardKey(consolidationID int64) string {
	return fmt.Sprintf("groupledger:recalc:%d", consolidationID)
}

// Handle executes one queued recalculation.
func (j *RecalculateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Orchestrator == nil {
		return errors.New("recalculate: handler not configured")
	}
	var payload RecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ConsolidationID <= 0 {
		return asynq.SkipRetry
	}

	logger := j.log().With(slog.Int64("consolidation_id", payload.ConsolidationID))

	if j.Redis != nil {
		acquired, err := j.Redis.SetNX(ctx, guardKey(payload.ConsolidationID), j.clock().Format(time.RFC3339), j.Timeout).Result()
		if err != nil {
			return fmt.Errorf("recalculate: acquire guard: %w", err)
		}
		if !acquired {
			logger.Warn("recalculation already in flight, dropping")
			return fmt.Errorf("%w: %w", asynq.SkipRetry, consolidation.ErrRecalcInFlight)
		}
		defer func() {
			_ = j.Redis.Del(context.WithoutCancel(ctx), guardKey(payload.ConsolidationID)).Err()
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	start := j.clock()
	run, err := j.Orchestrator.Recalculate(ctx, payload.ConsolidationID, payload.ExpectedVersion)
	if err != nil {
		// A stale token means the caller must re-read and re-enqueue; a
		// retry with the same payload can never succeed.
		if errors.Is(err, shared.ErrStaleVersion) || errors.Is(err, shared.ErrWorkflow) {
			logger.Warn("recalculation rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		logger.Error("recalculation failed", slog.Any("error", err))
		return err
	}

	logger.Info("recalculation completed",
		slog.Int64("version", run.Version),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RecalculateJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

func (j *RecalculateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidationRecalc))
	}
	return slog.Default().With(slog.String("job", TaskConsolidationRecalc))
}
