package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/service/publisher"
	"github.com/voice2blog/courier/internal/service/publisher/linkedin"
	"github.com/voice2blog/courier/internal/service/publisher/medium"
)

const defaultPlatformTimeout = 30 * time.Second

// NewPlatformRegistry builds the publish manager with every enabled platform registered.
func NewPlatformRegistry(cfg *config.Config, logger *zap.Logger) *publisher.Manager {
	manager := publisher.NewPublishManager(logger)

	register := func(name string, enabled bool, build func() publisher.Publisher) {
		if !enabled {
			logger.Info("Publisher disabled", zap.String("platform", name))
			return
		}
		if err := manager.RegisterPublisher(build()); err != nil {
			logger.Error("Failed to register publisher", zap.String("platform", name), zap.Error(err))
			return
		}
		logger.Info("Publisher registered", zap.String("platform", name))
	}

	medCfg := cfg.Platforms.Medium
	register("medium", medCfg.Enabled, func() publisher.Publisher {
		return medium.NewMediumPublisher(logger, medCfg.BaseURL, config.Duration(medCfg.Timeout, defaultPlatformTimeout))
	})

	liCfg := cfg.Platforms.LinkedIn
	register("linkedin", liCfg.Enabled, func() publisher.Publisher {
		return linkedin.NewLinkedInPublisher(logger, liCfg.BaseURL, config.Duration(liCfg.Timeout, defaultPlatformTimeout))
	})

	return manager
}
