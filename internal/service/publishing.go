package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/store"
)

// ErrContentNotFound is returned when the content record does not exist.
var ErrContentNotFound = errors.New("content not found")

const exhaustedMessage = "Failed after maximum retry attempts"

// PlatformPublisher publishes content to one platform.
type PlatformPublisher interface {
	Publish(ctx context.Context, platform string, content *models.Content, config models.PublishConfig, imageURL string) (models.PublishResult, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func missingConfig(platform string) models.PublishResult {
	return models.Failed("No configuration found for platform: " + platform)
}

type PublishRequest struct {
	ContentID       string
	Platforms       []string
	Configs         map[string]models.PublishConfig
	ImageURL        string
	RetryFailedOnly bool
}

type PublishOutcome struct {
	Success bool                            `json:"success"`
	Message string                          `json:"message,omitempty"`
	Results map[string]models.PublishResult `json:"results"`
}

// PublishingOptions tunes direct publishing. Zero values fall back to the defaults.
type PublishingOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	Concurrency int
	Now         Clock
	Sleep       Sleeper
}

// PublishingService publishes content synchronously, retrying each platform with
// exponential backoff, and records the results on the content.
type PublishingService struct {
	store       store.Store
	publisher   PlatformPublisher
	monitor     *MonitoringService
	logger      *zap.Logger
	maxAttempts int
	backoffBase time.Duration
	concurrency int
	now         Clock
	sleep       Sleeper
}

func NewPublishingService(st store.Store, pub PlatformPublisher, monitor *MonitoringService, logger *zap.Logger, opts PublishingOptions) *PublishingService {
	s := &PublishingService{
		store:       st,
		publisher:   pub,
		monitor:     monitor,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		sleep:       opts.Sleep,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = models.DefaultMaxAttempts
	}
	if s.backoffBase <= 0 {
		s.backoffBase = time.Second
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

// Publish runs the direct publish flow. Per-platform failures are reported in the outcome;
// only store errors and a missing content record are returned as errors.
func (s *PublishingService) Publish(ctx context.Context, req PublishRequest) (*PublishOutcome, error) {
	start := time.Now()
	defer func() { s.monitor.ObservePublishDuration(time.Since(start)) }()

	content, err := s.store.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	if content == nil {
		return nil, ErrContentNotFound
	}

	platforms := req.Platforms
	if req.RetryFailedOnly {
		platforms = failedPlatforms(content, req.Platforms)
		if len(platforms) == 0 {
			s.logger.Info("No failed platforms to retry", zap.String("content_id", content.ID))
			return &PublishOutcome{
				Success: true,
				Message: "No platforms to retry",
				Results: map[string]models.PublishResult{},
			}, nil
		}
	}

	results := s.publishAll(ctx, content, platforms, req.Configs, req.ImageURL)

	now := models.Timestamp(s.now())
	merged := models.MergePublishingResults(content.PublishingResults, platforms, results, now)
	if err := s.store.UpdateContentPublishingResults(ctx, content.ID, merged, now); err != nil {
		return nil, fmt.Errorf("failed to save publishing results: %w", err)
	}

	s.logger.Info("Direct publish completed",
		zap.String("content_id", content.ID),
		zap.Strings("platforms", platforms))

	return &PublishOutcome{Success: true, Results: results}, nil
}

// failedPlatforms keeps the requested platforms whose last recorded result failed.
func failedPlatforms(content *models.Content, platforms []string) []string {
	var out []string
	for _, platform := range platforms {
		if record, ok := content.LastResult(platform); ok && !record.Success {
			out = append(out, platform)
		}
	}
	return out
}

func (s *PublishingService) publishAll(ctx context.Context, content *models.Content, platforms []string, configs map[string]models.PublishConfig, imageURL string) map[string]models.PublishResult {
	results := make(map[string]models.PublishResult, len(platforms))

	if s.concurrency <= 1 {
		for _, platform := range platforms {
			results[platform] = s.publishPlatform(ctx, content, platform, configs, imageURL)
		}
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, platform := range platforms {
		platform := platform
		g.Go(func() error {
			result := s.publishPlatform(gctx, content, platform, configs, imageURL)
			mu.Lock()
			results[platform] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// publishPlatform makes up to maxAttempts calls, sleeping backoffBase*2^(attempt-1) after
// each failed attempt that is not the last.
func (s *PublishingService) publishPlatform(ctx context.Context, content *models.Content, platform string, configs map[string]models.PublishConfig, imageURL string) models.PublishResult {
	config, ok := configs[platform]
	if !ok {
		return missingConfig(platform)
	}

	var lastErr string
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := s.publisher.Publish(ctx, platform, content, config, imageURL)
		switch {
		case err != nil:
			lastErr = err.Error()
			s.monitor.RecordPublishAttempt(platform, OutcomeError)
		case result.Success:
			s.monitor.RecordPublishAttempt(platform, OutcomeSuccess)
			return result
		default:
			lastErr = result.Error
			s.monitor.RecordPublishAttempt(platform, OutcomeFailure)
		}

		s.logger.Warn("Publish attempt failed",
			zap.String("content_id", content.ID),
			zap.String("platform", platform),
			zap.Int("attempt", attempt),
			zap.String("error", lastErr))

		if attempt < s.maxAttempts {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				break
			}
		}
	}

	if lastErr == "" {
		lastErr = exhaustedMessage
	}
	return models.Failed(lastErr)
}

func (s *PublishingService) backoff(attempt int) time.Duration {
	return s.backoffBase * time.Duration(1<<(attempt-1))
}
