package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/queue"
	"github.com/voice2blog/courier/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestMonitor() *MonitoringService {
	return NewMonitoringService(prometheus.NewRegistry(), zap.NewNop())
}

// recordingStore wraps a MemoryStore and logs every call made through the Store interface.
type recordingStore struct {
	*store.MemoryStore

	mu         sync.Mutex
	calls      []string
	jobUpdates map[string][]store.JobUpdate
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: store.NewMemoryStore(),
		jobUpdates:  make(map[string][]store.JobUpdate),
	}
}

func (s *recordingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.jobUpdates = make(map[string][]store.JobUpdate)
}

func (s *recordingStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingStore) count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (s *recordingStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	s.record("GetContent")
	return s.MemoryStore.GetContent(ctx, id)
}

func (s *recordingStore) UpdateContentPublishingResults(ctx context.Context, id string, results []models.PublishingRecord, updatedAt string) error {
	s.record("UpdateContentPublishingResults")
	return s.MemoryStore.UpdateContentPublishingResults(ctx, id, results, updatedAt)
}

func (s *recordingStore) PutJob(ctx context.Context, job *models.PublishingJob) error {
	s.record("PutJob")
	return s.MemoryStore.PutJob(ctx, job)
}

func (s *recordingStore) GetJob(ctx context.Context, id string) (*models.PublishingJob, error) {
	s.record("GetJob")
	return s.MemoryStore.GetJob(ctx, id)
}

func (s *recordingStore) UpdateJob(ctx context.Context, id string, update store.JobUpdate) error {
	s.record("UpdateJob")
	s.mu.Lock()
	s.jobUpdates[id] = append(s.jobUpdates[id], update)
	s.mu.Unlock()
	return s.MemoryStore.UpdateJob(ctx, id, update)
}

func (s *recordingStore) QueryJobsByOrchestration(ctx context.Context, orchestrationID string) ([]*models.PublishingJob, error) {
	s.record("QueryJobsByOrchestration")
	return s.MemoryStore.QueryJobsByOrchestration(ctx, orchestrationID)
}

func (s *recordingStore) PutOrchestration(ctx context.Context, orchestration *models.PublishingOrchestrationResult) error {
	s.record("PutOrchestration")
	return s.MemoryStore.PutOrchestration(ctx, orchestration)
}

func (s *recordingStore) GetOrchestration(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	s.record("GetOrchestration")
	return s.MemoryStore.GetOrchestration(ctx, jobID)
}

func (s *recordingStore) UpdateOrchestrationStatus(ctx context.Context, jobID string, status models.OrchestrationStatus, updatedAt string) error {
	s.record("UpdateOrchestrationStatus")
	return s.MemoryStore.UpdateOrchestrationStatus(ctx, jobID, status, updatedAt)
}

func (s *recordingStore) UpdateOrchestrationJob(ctx context.Context, jobID string, job *models.PublishingJob) error {
	s.record("UpdateOrchestrationJob")
	return s.MemoryStore.UpdateOrchestrationJob(ctx, jobID, job)
}

type enqueued struct {
	msg   queue.Message
	delay time.Duration
}

type recordingProducer struct {
	mu   sync.Mutex
	sent []enqueued
	err  error
}

func (p *recordingProducer) Enqueue(_ context.Context, msg queue.Message, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, enqueued{msg: msg, delay: delay})
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) Sent() []enqueued {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]enqueued(nil), p.sent...)
}

// scriptedPublisher replays a fixed sequence of outcomes per platform and then repeats the last.
type scriptedPublisher struct {
	mu      sync.Mutex
	scripts map[string][]outcome
	calls   map[string]int
}

type outcome struct {
	result models.PublishResult
	err    error
}

func newScriptedPublisher(scripts map[string][]outcome) *scriptedPublisher {
	return &scriptedPublisher{scripts: scripts, calls: make(map[string]int)}
}

func (p *scriptedPublisher) Publish(_ context.Context, platform string, _ *models.Content, _ models.PublishConfig, _ string) (models.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[platform]
	p.calls[platform]++

	script := p.scripts[platform]
	if len(script) == 0 {
		return models.PublishResult{}, errors.New("unsupported platform: " + platform)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].result, script[n].err
}

func (p *scriptedPublisher) Calls(platform string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[platform]
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *recordingSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}
