package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"r2r/internal/amqp"
	"r2r/internal/core"
	applog "r2r/internal/log"
)

const (
	DefaultBatchSize = 20
	// DefaultStaleAfter keeps the pending scan away from jobs whose queue
	// message is probably still in flight.
	DefaultStaleAfter = 2 * time.Minute
)

// JobRunner is the ingest side the worker drives.
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) (core.IngestJob, error)
	FailJob(ctx context.Context, jobID, reason string) (core.IngestJob, error)
	PendingJobs(ctx context.Context, limit int) ([]core.IngestJob, error)
}

// IngestWorker runs queued ingest jobs delivered over AMQP and recovers
// jobs whose message was lost.
type IngestWorker struct {
	jobs        JobRunner
	maxAttempts int
	batchSize   int
	staleAfter  time.Duration
	now         func() time.Time
	logger      *applog.StructuredLogger
}

func NewIngestWorker(jobs JobRunner, maxAttempts, batchSize int) *IngestWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &IngestWorker{
		jobs:        jobs,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		staleAfter:  DefaultStaleAfter,
		now:         time.Now,
		logger:      applog.NewStructuredLogger(workerLogger()),
	}
}

func workerLogger() *applog.Logger {
	return applog.New(applog.Config{Component: applog.ComponentWorker, Handler: slog.Default().Handler()})
}

// HandleIngestMessage processes a single ingest job message from AMQP.
// A returned error requeues the message.
func (w *IngestWorker) HandleIngestMessage(ctx context.Context, msg *amqp.IngestJobMessage) error {
	slog.InfoContext(ctx, "Processing ingest job",
		"job_id", msg.JobID,
		"user_id", msg.UserID)

	return w.process(ctx, msg.JobID)
}

func (w *IngestWorker) process(ctx context.Context, jobID string) error {
	job, err := w.jobs.RunJob(ctx, jobID)
	if err == nil && job.Status == core.JobRunning {
		slog.InfoContext(ctx, "Ingest job already claimed by another runner", "job_id", jobID)
		return nil
	}
	if err == nil {
		slog.InfoContext(ctx, "Ingest job completed",
			"job_id", jobID,
			"status", job.Status,
			"count", job.Extracted,
			"attempts", job.Attempts)
		return nil
	}

	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Dropping ingest job that no longer resolves", "job_id", jobID, "error", err)
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	if job.Attempts >= w.maxAttempts {
		if _, failErr := w.jobs.FailJob(ctx, jobID, err.Error()); failErr != nil {
			slog.ErrorContext(ctx, "Failed to mark ingest job failed", "job_id", jobID, "error", failErr)
			return fmt.Errorf("fail ingest job: %w", failErr)
		}
		errType := applog.ErrorTypeInternal
		if errors.Is(err, core.ErrExternalService) {
			errType = applog.ErrorTypeExternal
		}
		w.logger.LogError(ctx, "Ingest job failed permanently", err, applog.ComponentWorker, applog.OpRunJob,
			applog.NewFields().WithJob(jobID, job.Attempts).WithErrorType(errType))
		return nil
	}

	slog.WarnContext(ctx, "Ingest job attempt failed, will retry",
		"job_id", jobID,
		"attempts", job.Attempts,
		"max_attempts", w.maxAttempts,
		"error", err)
	return fmt.Errorf("run ingest job: %w", err)
}

// ProcessPendingJobs runs pending jobs that have not been touched recently.
// This is a backup mechanism in case AMQP messages are lost.
func (w *IngestWorker) ProcessPendingJobs(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupPendingCheck recovers jobs left pending while the worker was down.
func (w *IngestWorker) StartupPendingCheck(ctx context.Context) error {
	processed, errorCount, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("pending jobs startup check: %w", err)
	}
	if processed == 0 && errorCount == 0 {
		slog.InfoContext(ctx, "No pending ingest jobs found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup pending check completed",
		"processed", processed,
		"errors", errorCount)
	return nil
}

func (w *IngestWorker) processPending(ctx context.Context, limit int) (processed, errorCount int, err error) {
	pending, err := w.jobs.PendingJobs(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending jobs: %w", err)
	}

	cutoff := w.now().Add(-w.staleAfter)
	for _, job := range pending {
		if ctx.Err() != nil {
			return processed, errorCount, ctx.Err()
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := w.process(ctx, job.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to process pending ingest job", "job_id", job.ID, "error", err)
			errorCount++
			continue
		}
		processed++
	}
	if processed+errorCount > 0 {
		slog.InfoContext(ctx, "Processed pending ingest jobs", "count", processed, "errors", errorCount)
	}
	return processed, errorCount, nil
}
