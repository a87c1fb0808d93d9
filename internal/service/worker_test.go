package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/queue"
)

type heldLocker struct{}

func (heldLocker) Obtain(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, queue.ErrLocked
}

func newTestWorker(st *recordingStore, pub PlatformPublisher, sleeper *recordingSleeper, consumer queue.Consumer) *Worker {
	return NewWorker(st, consumer, pub, queue.NewLocalLocker(), newTestMonitor(), zap.NewNop(), WorkerOptions{
		Now:   fixedClock,
		Sleep: sleeper.Sleep,
	})
}

func messageFor(jobID, platform string) queue.Message {
	return queue.Message{JobID: models.JobIDFor(jobID, platform), ContentID: "c1", Platform: platform}
}

func TestWorkerHandle(t *testing.T) {
	tests := []struct {
		name       string
		job        *models.PublishingJob
		script     []outcome
		status     models.JobStatus
		attempts   int
		lastError  string
		published  bool
		contentLog bool
	}{
		{
			name:       "fresh job succeeds",
			job:        &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending},
			script:     []outcome{{result: models.Succeeded("https://m/1", "1")}},
			status:     models.JobStatusCompleted,
			attempts:   1,
			published:  true,
			contentLog: true,
		},
		{
			name:       "rejected publish fails the job",
			job:        &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending},
			script:     []outcome{{result: models.Failed("invalid token")}},
			status:     models.JobStatusFailed,
			attempts:   1,
			lastError:  "invalid token",
			published:  true,
			contentLog: true,
		},
		{
			name:       "publisher error fails the job",
			job:        &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending},
			script:     []outcome{{err: errors.New("connection reset")}},
			status:     models.JobStatusFailed,
			attempts:   1,
			lastError:  "connection reset",
			published:  true,
			contentLog: true,
		},
		{
			name:       "retried job keeps counted attempts",
			job:        &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending, Attempts: 2},
			script:     []outcome{{result: models.Succeeded("https://m/1", "1")}},
			status:     models.JobStatusCompleted,
			attempts:   2,
			published:  true,
			contentLog: true,
		},
		{
			name:     "cancelled job is skipped",
			job:      &models.PublishingJob{Platform: "medium", Status: models.JobStatusCancelled},
			script:   []outcome{{result: models.Succeeded("https://m/1", "1")}},
			status:   models.JobStatusCancelled,
			attempts: 0,
		},
		{
			name:      "failed job is skipped",
			job:       &models.PublishingJob{Platform: "medium", Status: models.JobStatusFailed, Attempts: 3, MaxAttempts: 3, LastError: "invalid token"},
			script:    []outcome{{result: models.Succeeded("https://m/1", "1")}},
			status:    models.JobStatusFailed,
			attempts:  3,
			lastError: "invalid token",
		},
		{
			name:     "completed job is skipped",
			job:      &models.PublishingJob{Platform: "medium", Status: models.JobStatusCompleted, Attempts: 1},
			script:   []outcome{{result: models.Succeeded("https://m/1", "1")}},
			status:   models.JobStatusCompleted,
			attempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newRecordingStore()
			seedContent(t, st, &models.Content{ID: "c1", Title: "Hello"})
			seedOrchestration(t, st, "job_c1_1", tt.job)
			pub := newScriptedPublisher(map[string][]outcome{"medium": tt.script})
			w := newTestWorker(st, pub, &recordingSleeper{}, nil)

			if err := w.Handle(ctx, messageFor("job_c1_1", "medium")); err != nil {
				t.Fatalf("Handle() unexpected error: %v", err)
			}

			job, _ := st.MemoryStore.GetJob(ctx, "job_c1_1_medium")
			if job.Status != tt.status || job.Attempts != tt.attempts || job.LastError != tt.lastError {
				t.Errorf("job = %s/%d/%q, want %s/%d/%q", job.Status, job.Attempts, job.LastError, tt.status, tt.attempts, tt.lastError)
			}
			if called := pub.Calls("medium") > 0; called != tt.published {
				t.Errorf("published = %v, want %v", called, tt.published)
			}

			orchestration, _ := st.MemoryStore.GetOrchestration(ctx, "job_c1_1")
			if mirrored := orchestration.Jobs["medium"]; mirrored.Status != tt.status {
				t.Errorf("orchestration job status = %q, want %q", mirrored.Status, tt.status)
			}

			content, _ := st.MemoryStore.GetContent(ctx, "c1")
			if got := len(content.PublishingResults) == 1; got != tt.contentLog {
				t.Errorf("content results = %+v, want recorded=%v", content.PublishingResults, tt.contentLog)
			}
		})
	}
}

func TestWorkerHandleRedeliveredMessageKeepsBudget(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	seedContent(t, st, &models.Content{ID: "c1"})
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending, MaxAttempts: 1})
	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Failed("invalid token")}}})
	w := newTestWorker(st, pub, &recordingSleeper{}, nil)

	for i := 0; i < 3; i++ {
		if err := w.Handle(ctx, messageFor("job_c1_1", "medium")); err != nil {
			t.Fatalf("Handle() #%d unexpected error: %v", i+1, err)
		}
	}

	if got := pub.Calls("medium"); got != 1 {
		t.Errorf("publisher called %d times, want 1", got)
	}
	job, _ := st.MemoryStore.GetJob(ctx, "job_c1_1_medium")
	if job.Status != models.JobStatusFailed || job.Attempts != 1 || job.Attempts > job.MaxAttempts {
		t.Errorf("job = %s %d/%d, want failed 1/1", job.Status, job.Attempts, job.MaxAttempts)
	}
}

func TestWorkerHandleMissingContent(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending})
	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Succeeded("u", "1")}}})
	w := newTestWorker(st, pub, &recordingSleeper{}, nil)

	if err := w.Handle(ctx, messageFor("job_c1_1", "medium")); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}

	job, _ := st.MemoryStore.GetJob(ctx, "job_c1_1_medium")
	if job.Status != models.JobStatusFailed || job.LastError != "Content not found" {
		t.Errorf("job = %s/%q, want failed/Content not found", job.Status, job.LastError)
	}
	if pub.Calls("medium") != 0 {
		t.Errorf("publisher called %d times, want 0", pub.Calls("medium"))
	}
}

func TestWorkerHandleMissingJob(t *testing.T) {
	st := newRecordingStore()
	pub := newScriptedPublisher(nil)
	w := newTestWorker(st, pub, &recordingSleeper{}, nil)

	if err := w.Handle(context.Background(), messageFor("job_c1_1", "medium")); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if calls := st.Calls(); !reflect.DeepEqual(calls, []string{"GetJob"}) {
		t.Errorf("store calls = %v, want only GetJob", calls)
	}
}

func TestWorkerHandleWaitsForNextRetry(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	seedContent(t, st, &models.Content{ID: "c1"})
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{
		Platform:    "medium",
		Status:      models.JobStatusPending,
		Attempts:    2,
		NextRetryAt: models.Timestamp(fixedNow.Add(4 * time.Second)),
	})
	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Succeeded("u", "1")}}})
	sleeper := &recordingSleeper{}
	w := newTestWorker(st, pub, sleeper, nil)

	if err := w.Handle(ctx, messageFor("job_c1_1", "medium")); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if got := sleeper.Sleeps(); !reflect.DeepEqual(got, []time.Duration{4 * time.Second}) {
		t.Errorf("sleeps = %v, want [4s]", got)
	}
}

func TestWorkerHandleSkipsLockedJob(t *testing.T) {
	st := newRecordingStore()
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending})
	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Succeeded("u", "1")}}})
	w := NewWorker(st, nil, pub, heldLocker{}, newTestMonitor(), zap.NewNop(), WorkerOptions{Now: fixedClock})

	if err := w.Handle(context.Background(), messageFor("job_c1_1", "medium")); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if len(st.Calls()) != 0 || pub.Calls("medium") != 0 {
		t.Errorf("store calls = %v, publish calls = %d, want none", st.Calls(), pub.Calls("medium"))
	}
}

func TestWorkerConsumesQueue(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	seedContent(t, st, &models.Content{ID: "c1"})
	producer := &recordingProducer{}
	o := newTestOrchestrator(st, producer)

	q := queue.NewMemoryQueue()
	defer q.Close()

	orchestration, err := o.Orchestrate(ctx, OrchestrateRequest{
		ContentID: "c1",
		Platforms: []string{"medium"},
		Configs:   map[string]models.PublishConfig{"medium": {}},
	})
	if err != nil {
		t.Fatalf("Orchestrate() unexpected error: %v", err)
	}
	for _, sent := range producer.Sent() {
		if err := q.Enqueue(ctx, sent.msg, 0); err != nil {
			t.Fatalf("Enqueue() unexpected error: %v", err)
		}
	}

	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Succeeded("https://m/1", "1")}}})
	w := newTestWorker(st, pub, &recordingSleeper{}, q)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	defer w.Stop()

	jobID := orchestration.Jobs["medium"].ID
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := st.MemoryStore.GetJob(ctx, jobID)
		if job.Status == models.JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s was not completed by the worker", jobID)
}

// flakyStore fails the first failures GetJob calls.
type flakyStore struct {
	*recordingStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) GetJob(ctx context.Context, id string) (*models.PublishingJob, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return s.recordingStore.GetJob(ctx, id)
}

func TestWorkerRequeuesAfterStoreError(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	seedContent(t, st, &models.Content{ID: "c1"})
	seedOrchestration(t, st, "job_c1_1", &models.PublishingJob{Platform: "medium", Status: models.JobStatusPending})

	q := queue.NewMemoryQueue()
	defer q.Close()
	if err := q.Enqueue(ctx, messageFor("job_c1_1", "medium"), 0); err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}

	pub := newScriptedPublisher(map[string][]outcome{"medium": {{result: models.Succeeded("https://m/1", "1")}}})
	w := NewWorker(&flakyStore{recordingStore: st, failures: 1}, q, pub, queue.NewLocalLocker(), newTestMonitor(), zap.NewNop(), WorkerOptions{
		PollInterval: 10 * time.Millisecond,
		Now:          fixedClock,
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := st.MemoryStore.GetJob(ctx, "job_c1_1_medium")
		if job.Status == models.JobStatusCompleted {
			if got := pub.Calls("medium"); got != 1 {
				t.Errorf("publisher called %d times, want 1", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job was not completed after the store recovered")
}

func TestWorkerStartWithoutConsumer(t *testing.T) {
	w := newTestWorker(newRecordingStore(), newScriptedPublisher(nil), &recordingSleeper{}, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Errorf("Start() expected error without a consumer")
	}
}
