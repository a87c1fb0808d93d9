// Command lambda runs courier on AWS Lambda, either behind API Gateway or as the SQS worker.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/server"
	"github.com/voice2blog/courier/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := os.Getenv("COURIER_CONFIG")
	if configPath == "" {
		configPath = "configs/server.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	mode := os.Getenv("COURIER_LAMBDA_HANDLER")
	worker := mode == "worker"

	app, err := server.NewApp(context.Background(), cfg, appLogger, worker)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer app.Close()

	appLogger.Info("Starting Lambda handler", zap.String("mode", mode))

	if worker {
		lambda.Start(newSQSHandler(app.Worker, appLogger))
	} else {
		lambda.Start(newAPIHandler(app.Dispatcher))
	}
	return nil
}
