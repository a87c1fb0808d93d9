package server

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/queue"
	"github.com/voice2blog/courier/internal/service"
	"github.com/voice2blog/courier/internal/store"
)

// App holds every long lived dependency of one process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        store.Store
	Queue        *queue.Queue
	Monitor      *service.MonitoringService
	Publishing   *service.PublishingService
	Orchestrator *service.Orchestrator
	Dispatcher   *Dispatcher
	Worker       *service.Worker
}

// NewApp connects the store and queue and builds the services. consume opens the queue for
// reading and builds the worker.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, consume bool) (*App, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	q, err := queue.Open(ctx, cfg.Queue, consume)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	monitor := service.NewMonitoringService(reg, logger)

	registry := service.NewPlatformRegistry(cfg, logger)

	publishing := service.NewPublishingService(st, registry, monitor, logger, service.PublishingOptions{
		MaxAttempts: cfg.Publishing.MaxAttempts,
		BackoffBase: config.Duration(cfg.Publishing.BackoffBase, 0),
		Concurrency: cfg.Publishing.PlatformConcurrency,
	})
	orchestrator := service.NewOrchestrator(st, q.Producer, monitor, logger, cfg.Publishing.MaxAttempts, nil)

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Queue:        q,
		Monitor:      monitor,
		Publishing:   publishing,
		Orchestrator: orchestrator,
		Dispatcher:   NewDispatcher(registry, st, publishing, orchestrator, logger),
	}

	if consume {
		app.Worker = service.NewWorker(st, q.Consumer, registry, queue.NewLocker(cfg.Worker.Lock, cfg.Queue.Redis), monitor, logger, service.WorkerOptions{
			PollInterval: config.Duration(cfg.Worker.PollInterval, 0),
			LockTTL:      config.Duration(cfg.Worker.LockTTL, 0),
		})
	}

	return app, nil
}

func (a *App) Close() error {
	return a.Queue.Close()
}
