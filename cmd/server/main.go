package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/server"
	"github.com/voice2blog/courier/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier - multi-platform publishing orchestrator",
	Long:  `Courier publishes blog content to Medium, LinkedIn and other platforms, directly or through a durable job queue.`,
	RunE:  runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the publishing API",
	RunE:  runServer,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the publish worker only",
	RunE:  runWorker,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Courier %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, workerCmd, versionCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Courier server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := server.NewApp(ctx, cfg, appLogger, cfg.Worker.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer app.Close()

	srv := server.NewServer(cfg, appLogger, app.Dispatcher, app.Monitor, app.Worker)

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	waitForSignal(ctx, appLogger)

	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func runWorker(*cobra.Command, []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Courier worker", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := server.NewApp(ctx, cfg, appLogger, true)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer app.Close()

	if err := app.Worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	waitForSignal(ctx, appLogger)
	app.Worker.Stop()

	appLogger.Info("Worker exited")
	return nil
}

func waitForSignal(ctx context.Context, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutting down...")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
