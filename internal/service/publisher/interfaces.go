package publisher

import (
	"context"
	"errors"

	"github.com/voice2blog/courier/internal/models"
)

// ErrUnsupportedPlatform is returned for platforms without a registered publisher.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Publish status values reported by GetPublishStatus.
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
	StatusUnknown   = "unknown"
)

// Publisher is the unified interface for all platform operations
type Publisher interface {
	GetPlatformName() string
	GetFeatures() []string

	// ValidateCredentials reports whether the platform accepts the credentials. Malformed
	// credentials are an error; rejected ones are (false, nil).
	ValidateCredentials(ctx context.Context, credentials map[string]string) (bool, error)

	// FormatContent renders content the way it would be sent to the platform.
	FormatContent(ctx context.Context, content *models.Content, imageURL string) (string, error)

	// Publish sends content to the platform. A rejected post is a failed result; transport
	// problems are returned as errors.
	Publish(ctx context.Context, content *models.Content, config models.PublishConfig, imageURL string) (models.PublishResult, error)

	GetPublishStatus(ctx context.Context, platformID string, config models.PublishConfig) (string, error)
}
