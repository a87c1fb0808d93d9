package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/service"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	Config *config.Config
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	Dispatcher *Dispatcher
	Monitor    *service.MonitoringService
	Worker     *service.Worker
}

// NewServer wires the HTTP routes. worker may be nil when the API runs without an in-process
// worker.
func NewServer(cfg *config.Config, logger *zap.Logger, dispatcher *Dispatcher, monitor *service.MonitoringService, worker *service.Worker) *Server {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Create server
	srv := &Server{
		Config:     cfg,
		Router:     gin.New(),
		Logger:     logger,
		Dispatcher: dispatcher,
		Monitor:    monitor,
		Worker:     worker,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	// Request ID middleware
	s.Router.Use(func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Metrics
	if s.Config.Metrics.Enabled && s.Monitor != nil {
		s.Router.GET(s.Config.Metrics.Path, gin.WrapH(s.Monitor.Handler()))
	}

	// Every other call, OPTIONS included, goes through the dispatcher so the HTTP and Lambda
	// entry points answer identically. It matches /publishing/<op> under any stage prefix.
	s.Router.NoRoute(s.handlePublishing)
}

func (s *Server) handlePublishing(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.Logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	query := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	resp := s.Dispatcher.Dispatch(c.Request.Context(), Request{
		Path:                  c.Request.URL.Path,
		HTTPMethod:            c.Request.Method,
		Body:                  string(body),
		QueryStringParameters: query,
	})

	for key, value := range resp.Headers {
		c.Header(key, value)
	}
	c.Data(resp.StatusCode, "application/json", []byte(resp.Body))
}

func (s *Server) Start(ctx context.Context) error {
	// Start worker
	if s.Worker != nil {
		if err := s.Worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop worker first
	if s.Worker != nil {
		s.Worker.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
