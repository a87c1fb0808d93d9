package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
)

// Manager is the platform registry.
type Manager struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (m *Manager) RegisterPublisher(publisher Publisher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	platformName := publisher.GetPlatformName()
	if _, exists := m.publishers[platformName]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platformName)
	}

	m.publishers[platformName] = publisher
	m.logger.Info("Publisher registered", zap.String("platform", platformName))
	return nil
}

func (m *Manager) GetPublisher(platformName string) (Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	publisher, exists := m.publishers[platformName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platformName)
	}
	return publisher, nil
}

// GetSupportedPlatforms returns the registered platform names, sorted.
func (m *Manager) GetSupportedPlatforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) GetPlatformFeatures(platformName string) ([]string, error) {
	publisher, err := m.GetPublisher(platformName)
	if err != nil {
		return nil, err
	}
	return publisher.GetFeatures(), nil
}

func (m *Manager) ValidateCredentials(ctx context.Context, platformName string, credentials map[string]string) (bool, error) {
	publisher, err := m.GetPublisher(platformName)
	if err != nil {
		return false, err
	}
	return publisher.ValidateCredentials(ctx, credentials)
}

func (m *Manager) Publish(ctx context.Context, platformName string, content *models.Content, config models.PublishConfig, imageURL string) (models.PublishResult, error) {
	publisher, err := m.GetPublisher(platformName)
	if err != nil {
		return models.PublishResult{}, err
	}

	result, err := publisher.Publish(ctx, content, config, imageURL)
	if err != nil {
		m.logger.Error("Failed to publish content",
			zap.String("platform", platformName),
			zap.String("content_id", content.ID),
			zap.Error(err))
		return models.PublishResult{}, err
	}

	m.logger.Info("Publishing completed",
		zap.String("platform", platformName),
		zap.String("content_id", content.ID),
		zap.Bool("success", result.Success),
		zap.String("platform_id", result.PlatformID))
	return result, nil
}

// PublishToMultiplePlatforms publishes once per platform. Every per-platform failure,
// including unknown platforms and missing configs, is captured in the returned map.
func (m *Manager) PublishToMultiplePlatforms(ctx context.Context, platforms []string, content *models.Content, configs map[string]models.PublishConfig, imageURL string) map[string]models.PublishResult {
	results := make(map[string]models.PublishResult, len(platforms))

	for _, platformName := range platforms {
		config, ok := configs[platformName]
		if !ok {
			results[platformName] = models.Failed("No configuration found for platform: " + platformName)
			continue
		}

		result, err := m.Publish(ctx, platformName, content, config, imageURL)
		if err != nil {
			results[platformName] = models.Failed(err.Error())
			continue
		}
		results[platformName] = result
	}

	return results
}

func (m *Manager) FormatContent(ctx context.Context, platformName string, content *models.Content, imageURL string) (string, error) {
	publisher, err := m.GetPublisher(platformName)
	if err != nil {
		return "", err
	}
	return publisher.FormatContent(ctx, content, imageURL)
}

func (m *Manager) GetPublishingStatus(ctx context.Context, platformName, platformID string, config models.PublishConfig) (string, error) {
	publisher, err := m.GetPublisher(platformName)
	if err != nil {
		return "", err
	}
	return publisher.GetPublishStatus(ctx, platformID, config)
}
