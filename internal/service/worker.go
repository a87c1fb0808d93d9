package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/queue"
	"github.com/voice2blog/courier/internal/store"
)

type WorkerOptions struct {
	PollInterval time.Duration
	LockTTL      time.Duration
	Now          Clock
	Sleep        Sleeper
}

// Worker consumes queued jobs and publishes them one at a time.
type Worker struct {
	id        string
	store     store.Store
	consumer  queue.Consumer
	publisher PlatformPublisher
	locker    queue.Locker
	monitor   *MonitoringService
	logger    *zap.Logger

	pollInterval time.Duration
	lockTTL      time.Duration
	now          Clock
	sleep        Sleeper

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(st store.Store, consumer queue.Consumer, pub PlatformPublisher, locker queue.Locker, monitor *MonitoringService, logger *zap.Logger, opts WorkerOptions) *Worker {
	w := &Worker{
		id:           uuid.NewString(),
		store:        st,
		consumer:     consumer,
		publisher:    pub,
		locker:       locker,
		monitor:      monitor,
		pollInterval: opts.PollInterval,
		lockTTL:      opts.LockTTL,
		now:          opts.Now,
		sleep:        opts.Sleep,
	}
	w.logger = logger.With(zap.String("worker_id", w.id))
	if w.pollInterval <= 0 {
		w.pollInterval = time.Second
	}
	if w.lockTTL <= 0 {
		w.lockTTL = 5 * time.Minute
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	return w
}

// Start runs the consume loop in the background until Stop is called or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if w.consumer == nil {
		return errors.New("worker has no queue consumer")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	w.logger.Info("Starting publish worker", zap.Duration("poll_interval", w.pollInterval))

	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
	return nil
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Info("Publish worker shutdown completed")
}

func (w *Worker) run(ctx context.Context) {
	for {
		delivery, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				w.logger.Info("Publish worker stopped")
				return
			}
			w.logger.Error("Failed to receive message", zap.Error(err))
			if err := w.sleep(ctx, w.pollInterval); err != nil {
				return
			}
			continue
		}

		start := time.Now()
		if err := w.Handle(ctx, delivery.Message); err != nil {
			w.monitor.RecordError("worker", "Failed to handle job", err, zap.String("job_id", delivery.Message.JobID))
			// Without Nack the backend redelivers the unacked message itself.
			if delivery.Nack != nil {
				if err := delivery.Nack(context.WithoutCancel(ctx), w.pollInterval); err != nil {
					w.logger.Error("Failed to requeue message", zap.String("job_id", delivery.Message.JobID), zap.Error(err))
				}
			}
			continue
		}
		if err := delivery.Ack(ctx); err != nil {
			w.logger.Warn("Failed to ack message", zap.String("job_id", delivery.Message.JobID), zap.Error(err))
		}

		w.logger.Debug("Message handled",
			zap.String("job_id", delivery.Message.JobID),
			zap.Duration("duration", time.Since(start)))
	}
}

// Handle publishes the job named by msg. Jobs that are missing, already finished or held by
// another worker are skipped. Only store errors are returned, so the message can be
// redelivered; publish failures are recorded on the job.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	log := w.logger.With(zap.String("job_id", msg.JobID), zap.String("platform", msg.Platform))

	release, err := w.locker.Obtain(ctx, msg.JobID, w.lockTTL)
	if errors.Is(err, queue.ErrLocked) {
		log.Info("Job is being handled by another worker, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock job: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release job lock", zap.Error(err))
		}
	}()

	job, err := w.store.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		log.Warn("Job not found, skipping")
		return nil
	}
	// Only jobs waiting to run are processed. in_progress is picked up again after a worker
	// crash. A failed job runs again only once Retry has set it back to pending.
	switch job.Status {
	case models.JobStatusPending, models.JobStatusInProgress, models.JobStatusRetrying:
	default:
		log.Info("Job is not runnable, skipping", zap.String("status", string(job.Status)))
		w.monitor.RecordWorkerJob(job.Platform, "skipped")
		return nil
	}

	if job.NextRetryAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, job.NextRetryAt); err == nil {
			if wait := at.Sub(w.now()); wait > 0 {
				if err := w.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}
	}

	// Retry counts the attempt it schedules; only a fresh job is counted here.
	if job.Attempts == 0 {
		job.Attempts = 1
	}
	job.Status = models.JobStatusInProgress
	job.UpdatedAt = models.Timestamp(w.now())
	if err := w.saveJob(ctx, job, store.JobUpdate{Status: job.Status, Attempts: &job.Attempts, UpdatedAt: job.UpdatedAt}); err != nil {
		return err
	}

	result, err := w.publish(ctx, job, msg.ImageURL)
	if err != nil {
		return err
	}

	job.Result = &result
	job.UpdatedAt = models.Timestamp(w.now())
	update := store.JobUpdate{Result: &result, UpdatedAt: job.UpdatedAt}
	if result.Success {
		job.Status = models.JobStatusCompleted
	} else {
		job.Status = models.JobStatusFailed
		job.LastError = result.Error
		update.LastError = &job.LastError
	}
	update.Status = job.Status
	if err := w.saveJob(ctx, job, update); err != nil {
		return err
	}

	if err := w.recordOnContent(ctx, job, result); err != nil {
		return err
	}

	w.monitor.RecordWorkerJob(job.Platform, string(job.Status))
	log.Info("Job handled",
		zap.String("status", string(job.Status)),
		zap.Int("attempts", job.Attempts),
		zap.String("error", job.LastError))
	return nil
}

// publish runs a single platform attempt. Content lookup failures other than store errors
// become a failed result.
func (w *Worker) publish(ctx context.Context, job *models.PublishingJob, imageURL string) (models.PublishResult, error) {
	content, err := w.store.GetContent(ctx, job.ContentID)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("failed to get content: %w", err)
	}
	if content == nil {
		return models.Failed("Content not found"), nil
	}

	result, err := w.publisher.Publish(ctx, job.Platform, content, job.Config, imageURL)
	if err != nil {
		w.monitor.RecordPublishAttempt(job.Platform, OutcomeError)
		return models.Failed(err.Error()), nil
	}
	if result.Success {
		w.monitor.RecordPublishAttempt(job.Platform, OutcomeSuccess)
	} else {
		w.monitor.RecordPublishAttempt(job.Platform, OutcomeFailure)
	}
	return result, nil
}

// saveJob writes the update and mirrors the job into its orchestration's jobs map, which is
// what Retry reads.
func (w *Worker) saveJob(ctx context.Context, job *models.PublishingJob, update store.JobUpdate) error {
	if err := w.store.UpdateJob(ctx, job.ID, update); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := w.store.UpdateOrchestrationJob(ctx, job.OrchestrationID, job); err != nil {
		return fmt.Errorf("failed to update orchestration job: %w", err)
	}
	return nil
}

func (w *Worker) recordOnContent(ctx context.Context, job *models.PublishingJob, result models.PublishResult) error {
	content, err := w.store.GetContent(ctx, job.ContentID)
	if err != nil {
		return fmt.Errorf("failed to get content: %w", err)
	}
	if content == nil {
		return nil
	}

	now := models.Timestamp(w.now())
	merged := models.MergePublishingResults(content.PublishingResults, []string{job.Platform},
		map[string]models.PublishResult{job.Platform: result}, now)
	if err := w.store.UpdateContentPublishingResults(ctx, content.ID, merged, now); err != nil {
		return fmt.Errorf("failed to save publishing results: %w", err)
	}
	return nil
}
