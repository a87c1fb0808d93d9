package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/queue"
	"github.com/voice2blog/courier/internal/store"
)

// ErrJobNotFound is returned by Retry when the orchestration does not exist.
var ErrJobNotFound = errors.New("Job not found")

type OrchestrateRequest struct {
	ContentID string
	Platforms []string
	Configs   map[string]models.PublishConfig
	ImageURL  string
}

// Orchestrator creates one queued job per platform and manages retry and cancellation of
// those jobs. Records are written with plain set semantics, so concurrent retry and cancel
// calls on one orchestration resolve as last writer wins.
type Orchestrator struct {
	store       store.Store
	producer    queue.Producer
	monitor     *MonitoringService
	logger      *zap.Logger
	maxAttempts int
	now         Clock
}

func NewOrchestrator(st store.Store, producer queue.Producer, monitor *MonitoringService, logger *zap.Logger, maxAttempts int, now Clock) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:       st,
		producer:    producer,
		monitor:     monitor,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         now,
	}
}

// Orchestrate persists and enqueues a pending job for every configured platform, then saves
// the orchestration. Platforms without a config get a failed result and no job.
func (o *Orchestrator) Orchestrate(ctx context.Context, req OrchestrateRequest) (*models.PublishingOrchestrationResult, error) {
	now := o.now()
	ts := models.Timestamp(now)
	jobID := fmt.Sprintf("job_%s_%d", req.ContentID, now.UnixMilli())

	results := make(map[string]models.PublishResult)
	jobs := make(map[string]*models.PublishingJob)

	for _, platform := range req.Platforms {
		config, ok := req.Configs[platform]
		if !ok {
			results[platform] = missingConfig(platform)
			continue
		}

		job := &models.PublishingJob{
			ID:              models.JobIDFor(jobID, platform),
			OrchestrationID: jobID,
			ContentID:       req.ContentID,
			Platform:        platform,
			Config:          config,
			Status:          models.JobStatusPending,
			Attempts:        0,
			MaxAttempts:     o.maxAttempts,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if err := o.store.PutJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save job %s: %w", job.ID, err)
		}

		msg := queue.Message{
			JobID:     job.ID,
			ContentID: req.ContentID,
			Platform:  platform,
			Config:    config,
			ImageURL:  req.ImageURL,
		}
		if err := o.producer.Enqueue(ctx, msg, 0); err != nil {
			return nil, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
		}
		o.monitor.RecordJobEnqueued(platform, "orchestrate")

		jobs[platform] = job
	}

	orchestration := &models.PublishingOrchestrationResult{
		JobID:               jobID,
		ContentID:           req.ContentID,
		TotalPlatforms:      len(req.Platforms),
		SuccessfulPlatforms: 0,
		FailedPlatforms:     0,
		Status:              models.OrchestrationInProgress,
		Results:             results,
		Jobs:                jobs,
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}
	if err := o.store.PutOrchestration(ctx, orchestration); err != nil {
		return nil, fmt.Errorf("failed to save orchestration: %w", err)
	}
	o.monitor.RecordOrchestration()

	o.logger.Info("Publishing orchestrated",
		zap.String("job_id", jobID),
		zap.String("content_id", req.ContentID),
		zap.Int("jobs", len(jobs)),
		zap.Int("platforms", len(req.Platforms)))

	return orchestration, nil
}

// Retry re-activates failed jobs with attempts left. Each selected job gets attempts+1 and is
// re-enqueued after 2^attempts seconds. The returned orchestration is the stored one with the
// selected jobs updated in memory; counters are not recomputed.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	orchestration, err := o.store.GetOrchestration(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if orchestration == nil {
		return nil, ErrJobNotFound
	}

	platforms := make([]string, 0, len(orchestration.Jobs))
	for platform := range orchestration.Jobs {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	for _, platform := range platforms {
		job := orchestration.Jobs[platform]
		if job == nil || !job.CanRetry() {
			continue
		}

		now := o.now()
		job.Status = models.JobStatusPending
		job.Attempts++
		delay := time.Duration(1<<job.Attempts) * time.Second
		job.UpdatedAt = models.Timestamp(now)
		job.NextRetryAt = models.Timestamp(now.Add(delay))

		attempts := job.Attempts
		nextRetryAt := job.NextRetryAt
		err := o.store.UpdateJob(ctx, job.ID, store.JobUpdate{
			Status:      models.JobStatusPending,
			Attempts:    &attempts,
			NextRetryAt: &nextRetryAt,
			UpdatedAt:   job.UpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update job %s: %w", job.ID, err)
		}

		msg := queue.Message{
			JobID:     job.ID,
			ContentID: job.ContentID,
			Platform:  job.Platform,
			Config:    job.Config,
		}
		if err := o.producer.Enqueue(ctx, msg, delay); err != nil {
			return nil, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
		}
		o.monitor.RecordRetry(platform)
		o.monitor.RecordJobEnqueued(platform, "retry")

		o.logger.Info("Job scheduled for retry",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Duration("delay", delay))
	}

	return orchestration, nil
}

// GetJobStatus returns the orchestration, or nil when it does not exist.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	return o.store.GetOrchestration(ctx, jobID)
}

// Cancel marks the orchestration cancelled and cancels its pending and in-progress jobs. It
// does not stop a job a worker is already publishing.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	ts := models.Timestamp(o.now())

	if err := o.store.UpdateOrchestrationStatus(ctx, jobID, models.OrchestrationCancelled, ts); err != nil {
		return fmt.Errorf("failed to cancel orchestration: %w", err)
	}

	jobs, err := o.store.QueryJobsByOrchestration(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to query jobs: %w", err)
	}

	cancelled := 0
	for _, job := range jobs {
		if !job.Cancellable() {
			continue
		}
		if err := o.store.UpdateJob(ctx, job.ID, store.JobUpdate{Status: models.JobStatusCancelled, UpdatedAt: ts}); err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", job.ID, err)
		}
		cancelled++
	}
	o.monitor.RecordCancel()

	o.logger.Info("Orchestration cancelled",
		zap.String("job_id", jobID),
		zap.Int("cancelled_jobs", cancelled))
	return nil
}
