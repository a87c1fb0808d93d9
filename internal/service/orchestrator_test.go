package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
)

func newTestOrchestrator(st *recordingStore, producer *recordingProducer) *Orchestrator {
	return NewOrchestrator(st, producer, newTestMonitor(), zap.NewNop(), 3, fixedClock)
}

func seedOrchestration(t *testing.T, st *recordingStore, jobID string, jobs ...*models.PublishingJob) {
	t.Helper()
	ctx := context.Background()
	orchestration := &models.PublishingOrchestrationResult{
		JobID:          jobID,
		ContentID:      "c1",
		TotalPlatforms: len(jobs),
		Status:         models.OrchestrationInProgress,
		Results:        map[string]models.PublishResult{},
		Jobs:           map[string]*models.PublishingJob{},
	}
	for _, job := range jobs {
		job.ID = models.JobIDFor(jobID, job.Platform)
		job.OrchestrationID = jobID
		job.ContentID = "c1"
		if job.MaxAttempts == 0 {
			job.MaxAttempts = 3
		}
		if err := st.PutJob(ctx, job); err != nil {
			t.Fatalf("PutJob() unexpected error: %v", err)
		}
		orchestration.Jobs[job.Platform] = job
	}
	if err := st.PutOrchestration(ctx, orchestration); err != nil {
		t.Fatalf("PutOrchestration() unexpected error: %v", err)
	}
	st.reset()
}

func TestOrchestrateSkipsPlatformsWithoutConfig(t *testing.T) {
	st := newRecordingStore()
	producer := &recordingProducer{}
	o := newTestOrchestrator(st, producer)

	config := models.PublishConfig{Credentials: map[string]string{"accessToken": "t"}}
	got, err := o.Orchestrate(context.Background(), OrchestrateRequest{
		ContentID: "c1",
		Platforms: []string{"medium", "linkedin"},
		Configs:   map[string]models.PublishConfig{"medium": config},
		ImageURL:  "https://img/1.png",
	})
	if err != nil {
		t.Fatalf("Orchestrate() unexpected error: %v", err)
	}

	wantJobID := "job_c1_" + "1714564800000"
	if got.JobID != wantJobID {
		t.Errorf("JobID = %q, want %q", got.JobID, wantJobID)
	}
	if got.TotalPlatforms != 2 || got.SuccessfulPlatforms != 0 || got.FailedPlatforms != 0 {
		t.Errorf("counters = %d/%d/%d, want 2/0/0", got.TotalPlatforms, got.SuccessfulPlatforms, got.FailedPlatforms)
	}
	if got.Status != models.OrchestrationInProgress {
		t.Errorf("Status = %q, want in_progress", got.Status)
	}
	if r := got.Results["linkedin"]; r.Success || r.Error != "No configuration found for platform: linkedin" {
		t.Errorf("results[linkedin] = %+v", r)
	}
	if _, ok := got.Jobs["linkedin"]; ok || len(got.Jobs) != 1 {
		t.Errorf("jobs = %v, want only medium", got.Jobs)
	}

	job := got.Jobs["medium"]
	if job.ID != wantJobID+"_medium" || job.Status != models.JobStatusPending || job.Attempts != 0 || job.MaxAttempts != 3 {
		t.Errorf("medium job = %+v", job)
	}

	if n := st.count("PutJob"); n != 1 {
		t.Errorf("PutJob called %d times, want 1", n)
	}
	if n := st.count("PutOrchestration"); n != 1 {
		t.Errorf("PutOrchestration called %d times, want 1", n)
	}

	sent := producer.Sent()
	if len(sent) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(sent))
	}
	if sent[0].delay != 0 {
		t.Errorf("delay = %v, want 0", sent[0].delay)
	}
	if sent[0].msg.JobID != job.ID || sent[0].msg.Platform != "medium" || sent[0].msg.ImageURL != "https://img/1.png" {
		t.Errorf("message = %+v", sent[0].msg)
	}
	if !reflect.DeepEqual(sent[0].msg.Config, config) {
		t.Errorf("message config = %+v, want %+v", sent[0].msg.Config, config)
	}

	stored, _ := st.MemoryStore.GetOrchestration(context.Background(), wantJobID)
	if stored == nil || stored.Jobs["medium"] == nil {
		t.Fatalf("stored orchestration = %+v", stored)
	}
}

func TestOrchestrateEnqueueFailure(t *testing.T) {
	st := newRecordingStore()
	producer := &recordingProducer{err: errors.New("queue unavailable")}
	o := newTestOrchestrator(st, producer)

	_, err := o.Orchestrate(context.Background(), OrchestrateRequest{
		ContentID: "c1",
		Platforms: []string{"medium"},
		Configs:   map[string]models.PublishConfig{"medium": {}},
	})
	if err == nil {
		t.Fatalf("Orchestrate() expected error")
	}
	if n := st.count("PutOrchestration"); n != 0 {
		t.Errorf("PutOrchestration called %d times, want 0", n)
	}
}

func TestRetrySelectsFailedJobsWithBudget(t *testing.T) {
	st := newRecordingStore()
	producer := &recordingProducer{}
	seedOrchestration(t, st, "job_c1_1",
		&models.PublishingJob{Platform: "medium", Status: models.JobStatusFailed, Attempts: 1},
	)
	o := newTestOrchestrator(st, producer)

	got, err := o.Retry(context.Background(), "job_c1_1")
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}

	if n := st.count("UpdateJob"); n != 1 {
		t.Errorf("UpdateJob called %d times, want 1", n)
	}
	updates := st.jobUpdates["job_c1_1_medium"]
	if len(updates) != 1 || updates[0].Attempts == nil || *updates[0].Attempts != 2 || updates[0].Status != models.JobStatusPending {
		t.Errorf("job updates = %+v, want attempts 2 pending", updates)
	}

	sent := producer.Sent()
	if len(sent) != 1 || sent[0].delay != 4*time.Second {
		t.Fatalf("enqueued = %+v, want one message delayed 4s", sent)
	}

	job := got.Jobs["medium"]
	if job.Attempts != 2 || job.Status != models.JobStatusPending {
		t.Errorf("returned job = %+v", job)
	}
	if want := models.Timestamp(fixedNow.Add(4 * time.Second)); job.NextRetryAt != want {
		t.Errorf("NextRetryAt = %q, want %q", job.NextRetryAt, want)
	}
}

func TestRetryDelayDoublesWithAttempts(t *testing.T) {
	tests := []struct {
		attempts int
		delay    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{4, 32 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.delay.String(), func(t *testing.T) {
			st := newRecordingStore()
			producer := &recordingProducer{}
			seedOrchestration(t, st, "job_c1_1",
				&models.PublishingJob{Platform: "medium", Status: models.JobStatusFailed, Attempts: tt.attempts, MaxAttempts: 5},
			)
			o := newTestOrchestrator(st, producer)

			got, err := o.Retry(context.Background(), "job_c1_1")
			if err != nil {
				t.Fatalf("Retry() unexpected error: %v", err)
			}
			if got.Jobs["medium"].Attempts != tt.attempts+1 {
				t.Errorf("attempts = %d, want %d", got.Jobs["medium"].Attempts, tt.attempts+1)
			}
			sent := producer.Sent()
			if len(sent) != 1 || sent[0].delay != tt.delay {
				t.Errorf("enqueued = %+v, want delay %v", sent, tt.delay)
			}
		})
	}
}

func TestRetryWithoutEligibleJobsWritesNothing(t *testing.T) {
	st := newRecordingStore()
	producer := &recordingProducer{}
	seedOrchestration(t, st, "job_c1_1",
		&models.PublishingJob{Platform: "medium", Status: models.JobStatusCompleted, Attempts: 1},
		&models.PublishingJob{Platform: "linkedin", Status: models.JobStatusFailed, Attempts: 3},
		&models.PublishingJob{Platform: "devto", Status: models.JobStatusCancelled},
	)
	o := newTestOrchestrator(st, producer)

	got, err := o.Retry(context.Background(), "job_c1_1")
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}

	if calls := st.Calls(); !reflect.DeepEqual(calls, []string{"GetOrchestration"}) {
		t.Errorf("store calls = %v, want only GetOrchestration", calls)
	}
	if len(producer.Sent()) != 0 {
		t.Errorf("enqueued %d messages, want 0", len(producer.Sent()))
	}

	tests := []struct {
		platform string
		status   models.JobStatus
		attempts int
	}{
		{"medium", models.JobStatusCompleted, 1},
		{"linkedin", models.JobStatusFailed, 3},
		{"devto", models.JobStatusCancelled, 0},
	}
	for _, tt := range tests {
		job := got.Jobs[tt.platform]
		if job.Status != tt.status || job.Attempts != tt.attempts {
			t.Errorf("jobs[%s] = %s/%d, want %s/%d", tt.platform, job.Status, job.Attempts, tt.status, tt.attempts)
		}
	}
}

func TestRetryUnknownOrchestration(t *testing.T) {
	o := newTestOrchestrator(newRecordingStore(), &recordingProducer{})

	_, err := o.Retry(context.Background(), "job_missing")
	if !errors.Is(err, ErrJobNotFound) || err.Error() != "Job not found" {
		t.Errorf("Retry() error = %v, want Job not found", err)
	}
}

func TestGetJobStatus(t *testing.T) {
	st := newRecordingStore()
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending})
	o := newTestOrchestrator(st, &recordingProducer{})

	got, err := o.GetJobStatus(context.Background(), "job_c1_1")
	if err != nil || got == nil || got.JobID != "job_c1_1" {
		t.Errorf("GetJobStatus() = %+v, %v", got, err)
	}

	got, err = o.GetJobStatus(context.Background(), "job_missing")
	if err != nil || got != nil {
		t.Errorf("GetJobStatus(missing) = %+v, %v, want nil, nil", got, err)
	}
}

func TestCancelOnlyTouchesActiveJobs(t *testing.T) {
	st := newRecordingStore()
	seedOrchestration(t, st, "job_c1_1",
		&models.PublishingJob{Platform: "medium", Status: models.JobStatusPending},
		&models.PublishingJob{Platform: "linkedin", Status: models.JobStatusInProgress, Attempts: 1},
		&models.PublishingJob{Platform: "devto", Status: models.JobStatusCompleted, Attempts: 1},
	)
	o := newTestOrchestrator(st, &recordingProducer{})

	if err := o.Cancel(context.Background(), "job_c1_1"); err != nil {
		t.Fatalf("Cancel() unexpected error: %v", err)
	}

	want := []string{"UpdateOrchestrationStatus", "QueryJobsByOrchestration", "UpdateJob", "UpdateJob"}
	if calls := st.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("store calls = %v, want %v", calls, want)
	}

	ctx := context.Background()
	orchestration, _ := st.MemoryStore.GetOrchestration(ctx, "job_c1_1")
	if orchestration.Status != models.OrchestrationCancelled {
		t.Errorf("orchestration status = %q, want cancelled", orchestration.Status)
	}

	tests := []struct {
		platform string
		status   models.JobStatus
	}{
		{"medium", models.JobStatusCancelled},
		{"linkedin", models.JobStatusCancelled},
		{"devto", models.JobStatusCompleted},
	}
	for _, tt := range tests {
		job, _ := st.MemoryStore.GetJob(ctx, models.JobIDFor("job_c1_1", tt.platform))
		if job.Status != tt.status {
			t.Errorf("job %s status = %q, want %q", tt.platform, job.Status, tt.status)
		}
	}
}

func TestCancelUnknownOrchestrationStillMarksCancelled(t *testing.T) {
	st := newRecordingStore()
	o := newTestOrchestrator(st, &recordingProducer{})

	if err := o.Cancel(context.Background(), "job_missing"); err != nil {
		t.Fatalf("Cancel() unexpected error: %v", err)
	}
	if n := st.count("UpdateOrchestrationStatus"); n != 1 {
		t.Errorf("UpdateOrchestrationStatus called %d times, want 1", n)
	}
	if n := st.count("UpdateJob"); n != 0 {
		t.Errorf("UpdateJob called %d times, want 0", n)
	}
}
