package models

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCancelled  JobStatus = "cancelled"
)

type OrchestrationStatus string

const (
	OrchestrationInProgress OrchestrationStatus = "in_progress"
	OrchestrationCompleted  OrchestrationStatus = "completed"
	OrchestrationPartial    OrchestrationStatus = "partial"
	OrchestrationFailed     OrchestrationStatus = "failed"
	OrchestrationCancelled  OrchestrationStatus = "cancelled"
)

// DefaultMaxAttempts is the attempt ceiling given to new jobs.
const DefaultMaxAttempts = 3

// PublishingJob publishes one content item to one platform.
type PublishingJob struct {
	ID              string         `gorm:"primaryKey;size:255" json:"id" dynamodbav:"id"`
	OrchestrationID string         `gorm:"size:255;index" json:"jobId" dynamodbav:"jobId"`
	ContentID       string         `gorm:"size:255;index" json:"contentId" dynamodbav:"contentId"`
	Platform        string         `gorm:"size:100" json:"platform" dynamodbav:"platform"`
	Config          PublishConfig  `gorm:"serializer:json" json:"config" dynamodbav:"config"`
	Status          JobStatus      `gorm:"size:50;default:'pending'" json:"status" dynamodbav:"status"`
	Attempts        int            `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts     int            `json:"maxAttempts" dynamodbav:"maxAttempts"`
	LastError       string         `gorm:"type:text" json:"lastError,omitempty" dynamodbav:"lastError,omitempty"`
	Result          *PublishResult `gorm:"serializer:json" json:"result,omitempty" dynamodbav:"result,omitempty"`
	CreatedAt       string         `gorm:"size:40" json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt       string         `gorm:"size:40" json:"updatedAt" dynamodbav:"updatedAt"`
	NextRetryAt     string         `gorm:"size:40" json:"nextRetryAt,omitempty" dynamodbav:"nextRetryAt,omitempty"`
}

func (PublishingJob) TableName() string { return "publishing_jobs" }

// JobIDFor builds the id of the job publishing to platform within an orchestration.
func JobIDFor(orchestrationID, platform string) string {
	return orchestrationID + "_" + platform
}

// CanRetry reports whether the job failed and still has attempt budget left.
func (j *PublishingJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < j.MaxAttempts
}

// Cancellable reports whether cancel should touch the job.
func (j *PublishingJob) Cancellable() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusInProgress
}

// PublishingOrchestrationResult tracks one multi-platform publish request.
type PublishingOrchestrationResult struct {
	JobID               string                    `gorm:"primaryKey;size:255" json:"jobId" dynamodbav:"jobId"`
	ContentID           string                    `gorm:"size:255;index" json:"contentId" dynamodbav:"contentId"`
	TotalPlatforms      int                       `json:"totalPlatforms" dynamodbav:"totalPlatforms"`
	SuccessfulPlatforms int                       `json:"successfulPlatforms" dynamodbav:"successfulPlatforms"`
	FailedPlatforms     int                       `json:"failedPlatforms" dynamodbav:"failedPlatforms"`
	Status              OrchestrationStatus       `gorm:"size:50" json:"status" dynamodbav:"status"`
	Results             map[string]PublishResult  `gorm:"serializer:json" json:"results" dynamodbav:"results"`
	Jobs                map[string]*PublishingJob `gorm:"serializer:json" json:"jobs" dynamodbav:"jobs"`
	CreatedAt           string                    `gorm:"size:40" json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	UpdatedAt           string                    `gorm:"size:40" json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

func (PublishingOrchestrationResult) TableName() string { return "publishing_orchestrations" }

// Timestamp formats t the way every record stores time: ISO-8601, UTC, millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
