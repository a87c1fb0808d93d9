// Package store persists content, publishing jobs and orchestration records.
//
// Writes use plain "set field" semantics: there are no conditional writes, so concurrent
// updates to the same record resolve as last writer wins.
package store

import (
	"context"
	"fmt"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/models"
)

// JobUpdate lists the job fields to overwrite. Nil pointers and an empty Status are left
// untouched; UpdatedAt is always written.
type JobUpdate struct {
	Status      models.JobStatus
	Attempts    *int
	LastError   *string
	Result      *models.PublishResult
	NextRetryAt *string
	UpdatedAt   string
}

// Store is the key-value persistence the orchestrator and worker run on.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	GetContent(ctx context.Context, id string) (*models.Content, error)
	UpdateContentPublishingResults(ctx context.Context, id string, results []models.PublishingRecord, updatedAt string) error

	PutJob(ctx context.Context, job *models.PublishingJob) error
	GetJob(ctx context.Context, id string) (*models.PublishingJob, error)
	UpdateJob(ctx context.Context, id string, update JobUpdate) error
	QueryJobsByOrchestration(ctx context.Context, orchestrationID string) ([]*models.PublishingJob, error)

	PutOrchestration(ctx context.Context, orchestration *models.PublishingOrchestrationResult) error
	GetOrchestration(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error)
	UpdateOrchestrationStatus(ctx context.Context, jobID string, status models.OrchestrationStatus, updatedAt string) error
	// UpdateOrchestrationJob overwrites the jobs.<platform> entry of an orchestration.
	UpdateOrchestrationJob(ctx context.Context, jobID string, job *models.PublishingJob) error
}

// Apply copies the update onto job in memory.
func (u JobUpdate) Apply(job *models.PublishingJob) {
	if u.Status != "" {
		job.Status = u.Status
	}
	if u.Attempts != nil {
		job.Attempts = *u.Attempts
	}
	if u.LastError != nil {
		job.LastError = *u.LastError
	}
	if u.Result != nil {
		result := *u.Result
		job.Result = &result
	}
	if u.NextRetryAt != nil {
		job.NextRetryAt = *u.NextRetryAt
	}
	job.UpdatedAt = u.UpdatedAt
}

func errMissingKey(kind string) error {
	return fmt.Errorf("%s key is required", kind)
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "dynamodb":
		return NewDynamoStore(ctx, cfg.DynamoDB)
	case "postgres":
		db, err := NewDatabase(&cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db), nil
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
