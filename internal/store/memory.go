package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/voice2blog/courier/internal/models"
)

// MemoryStore keeps every record in process. It backs local runs and tests; records are deep
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu             sync.RWMutex
	contents       map[string]*models.Content
	jobs           map[string]*models.PublishingJob
	orchestrations map[string]*models.PublishingOrchestrationResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents:       make(map[string]*models.Content),
		jobs:           make(map[string]*models.PublishingJob),
		orchestrations: make(map[string]*models.PublishingOrchestrationResult),
	}
}

// PutContent seeds a content record.
func (s *MemoryStore) PutContent(_ context.Context, content *models.Content) error {
	if content.ID == "" {
		return errMissingKey("content")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[content.ID] = clone(content)
	return nil
}

func (s *MemoryStore) GetContent(_ context.Context, id string) (*models.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.contents[id]
	if !ok {
		return nil, nil
	}
	return clone(content), nil
}

func (s *MemoryStore) UpdateContentPublishingResults(_ context.Context, id string, results []models.PublishingRecord, updatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.contents[id]
	if !ok {
		// An update creates the item, matching DynamoDB UpdateItem.
		content = &models.Content{ID: id}
		s.contents[id] = content
	}
	content.PublishingResults = append([]models.PublishingRecord{}, results...)
	content.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) PutJob(_ context.Context, job *models.PublishingJob) error {
	if job.ID == "" {
		return errMissingKey("job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*models.PublishingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return clone(job), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id string, update JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		job = &models.PublishingJob{ID: id}
		s.jobs[id] = job
	}
	update.Apply(job)
	return nil
}

func (s *MemoryStore) QueryJobsByOrchestration(_ context.Context, orchestrationID string) ([]*models.PublishingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*models.PublishingJob
	for _, job := range s.jobs {
		if job.OrchestrationID == orchestrationID {
			jobs = append(jobs, clone(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (s *MemoryStore) PutOrchestration(_ context.Context, orchestration *models.PublishingOrchestrationResult) error {
	if orchestration.JobID == "" {
		return errMissingKey("orchestration")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orchestrations[orchestration.JobID] = clone(orchestration)
	return nil
}

func (s *MemoryStore) GetOrchestration(_ context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orchestration, ok := s.orchestrations[jobID]
	if !ok {
		return nil, nil
	}
	return clone(orchestration), nil
}

func (s *MemoryStore) UpdateOrchestrationStatus(_ context.Context, jobID string, status models.OrchestrationStatus, updatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	orchestration, ok := s.orchestrations[jobID]
	if !ok {
		orchestration = &models.PublishingOrchestrationResult{JobID: jobID}
		s.orchestrations[jobID] = orchestration
	}
	orchestration.Status = status
	orchestration.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) UpdateOrchestrationJob(_ context.Context, jobID string, job *models.PublishingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	orchestration, ok := s.orchestrations[jobID]
	if !ok {
		return nil
	}
	if orchestration.Jobs == nil {
		orchestration.Jobs = make(map[string]*models.PublishingJob)
	}
	orchestration.Jobs[job.Platform] = clone(job)
	return nil
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}
