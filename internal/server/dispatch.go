package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/service"
)

// Request is a transport neutral API call, shaped like an API Gateway proxy event.
type Request struct {
	Path                  string
	HTTPMethod            string
	Body                  string
	QueryStringParameters map[string]string
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Registry is the platform catalog the API exposes.
type Registry interface {
	GetSupportedPlatforms() []string
	GetPlatformFeatures(platform string) ([]string, error)
	ValidateCredentials(ctx context.Context, platform string, credentials map[string]string) (bool, error)
	FormatContent(ctx context.Context, platform string, content *models.Content, imageURL string) (string, error)
	GetPublishingStatus(ctx context.Context, platform, platformID string, config models.PublishConfig) (string, error)
}

// ContentReader loads content records.
type ContentReader interface {
	GetContent(ctx context.Context, id string) (*models.Content, error)
}

const routePrefix = "/publishing/"

// handlerFunc returns the status and body of a successful or expected-failure response. A
// returned error becomes a 500 carrying the route's label.
type handlerFunc func(ctx context.Context, req Request) (int, any, error)

type route struct {
	label  string
	handle handlerFunc
}

type malformedBodyError struct{ err error }

func (e *malformedBodyError) Error() string { return e.err.Error() }
func (e *malformedBodyError) Unwrap() error { return e.err }

// Dispatcher routes publishing API calls to the services.
type Dispatcher struct {
	registry     Registry
	contents     ContentReader
	publishing   *service.PublishingService
	orchestrator *service.Orchestrator
	logger       *zap.Logger
	validate     *validator.Validate
	routes       map[string]route
}

func NewDispatcher(registry Registry, contents ContentReader, publishing *service.PublishingService, orchestrator *service.Orchestrator, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		contents:     contents,
		publishing:   publishing,
		orchestrator: orchestrator,
		logger:       logger,
		validate:     validator.New(),
	}

	d.routes = map[string]route{
		http.MethodGet + " platforms":             {"Failed to get platforms", d.handlePlatforms},
		http.MethodPost + " validate-credentials": {"Failed to validate credentials", d.handleValidateCredentials},
		http.MethodPost + " publish":              {"Publishing failed", d.handlePublish},
		http.MethodPost + " status":               {"Failed to get publishing status", d.handleStatus},
		http.MethodPost + " format-preview":       {"Failed to format content", d.handleFormatPreview},
		http.MethodPost + " orchestrate":          {"Failed to orchestrate publishing", d.handleOrchestrate},
		http.MethodPost + " retry":                {"Failed to retry jobs", d.handleRetry},
		http.MethodGet + " job-status":            {"Failed to get job status", d.handleJobStatus},
		http.MethodPost + " cancel":               {"Failed to cancel job", d.handleCancel},
	}
	return d
}

func corsHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
	}
}

// operation extracts the op from a path ending in /publishing/<op>. Stage prefixes are ignored.
func operation(path string) string {
	i := strings.LastIndex(path, routePrefix)
	if i < 0 {
		return ""
	}
	op := strings.TrimSuffix(path[i+len(routePrefix):], "/")
	if strings.Contains(op, "/") {
		return ""
	}
	return op
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	if req.HTTPMethod == http.MethodOptions {
		return Response{StatusCode: http.StatusOK, Headers: corsHeaders()}
	}

	op := operation(req.Path)
	r, ok := d.routes[req.HTTPMethod+" "+op]
	if op == "" || !ok {
		return d.respond(http.StatusNotFound, errorResponse{Error: "Not found"})
	}

	status, body, err := r.handle(ctx, req)
	if err != nil {
		label := r.label
		var malformed *malformedBodyError
		if errors.As(err, &malformed) {
			label = "Internal server error"
		}
		d.logger.Error(label,
			zap.String("path", req.Path),
			zap.String("method", req.HTTPMethod),
			zap.Error(err))
		return d.respond(http.StatusInternalServerError, errorResponse{Error: label, Message: err.Error()})
	}
	return d.respond(status, body)
}

func (d *Dispatcher) respond(status int, body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		d.logger.Error("Failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "Internal server error", Message: err.Error()})
	}
	return Response{StatusCode: status, Headers: corsHeaders(), Body: string(data)}
}

// bind decodes the body, treating an empty body as {}.
func bind(req Request, v any) error {
	body := req.Body
	if body == "" {
		body = "{}"
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &malformedBodyError{err: err}
	}
	return nil
}

func badRequest(message string) (int, any, error) {
	return http.StatusBadRequest, errorResponse{Error: message}, nil
}

func (d *Dispatcher) handlePlatforms(_ context.Context, _ Request) (int, any, error) {
	names := d.registry.GetSupportedPlatforms()
	platforms := make([]models.PlatformInfo, 0, len(names))
	for _, name := range names {
		features, err := d.registry.GetPlatformFeatures(name)
		if err != nil {
			return 0, nil, err
		}
		platforms = append(platforms, models.PlatformInfo{Name: name, Features: features})
	}
	return http.StatusOK, platformsResponse{Platforms: platforms}, nil
}

func (d *Dispatcher) handleValidateCredentials(ctx context.Context, req Request) (int, any, error) {
	var in validateCredentialsRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("Platform and credentials are required")
	}

	valid, err := d.registry.ValidateCredentials(ctx, in.Platform, in.Credentials)
	if err != nil {
		return http.StatusBadRequest, map[string]any{"valid": false, "error": err.Error()}, nil
	}
	return http.StatusOK, map[string]bool{"valid": valid}, nil
}

func (d *Dispatcher) handlePublish(ctx context.Context, req Request) (int, any, error) {
	var in publishRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("ContentId, platforms, and configs are required")
	}

	out, err := d.publishing.Publish(ctx, service.PublishRequest{
		ContentID:       in.ContentID,
		Platforms:       in.Platforms,
		Configs:         in.Configs,
		ImageURL:        in.ImageURL,
		RetryFailedOnly: in.RetryFailedOnly,
	})
	if errors.Is(err, service.ErrContentNotFound) {
		return http.StatusNotFound, errorResponse{Error: "Content not found"}, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, out, nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, req Request) (int, any, error) {
	var in statusRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("ContentId, platform, platformId, and config are required")
	}

	status, err := d.registry.GetPublishingStatus(ctx, in.Platform, in.PlatformID, *in.Config)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]string{"status": status}, nil
}

func (d *Dispatcher) handleFormatPreview(ctx context.Context, req Request) (int, any, error) {
	var in formatPreviewRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("ContentId and platform are required")
	}

	content, err := d.contents.GetContent(ctx, in.ContentID)
	if err != nil {
		return 0, nil, err
	}
	if content == nil {
		return http.StatusNotFound, errorResponse{Error: "Content not found"}, nil
	}

	formatted, err := d.registry.FormatContent(ctx, in.Platform, content, in.ImageURL)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]string{"formattedContent": formatted}, nil
}

func (d *Dispatcher) handleOrchestrate(ctx context.Context, req Request) (int, any, error) {
	var in orchestrateRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("ContentId, platforms, and configs are required")
	}

	result, err := d.orchestrator.Orchestrate(ctx, service.OrchestrateRequest{
		ContentID: in.ContentID,
		Platforms: in.Platforms,
		Configs:   in.Configs,
		ImageURL:  in.ImageURL,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, result, nil
}

func (d *Dispatcher) handleRetry(ctx context.Context, req Request) (int, any, error) {
	var in jobRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("JobId is required")
	}

	result, err := d.orchestrator.Retry(ctx, in.JobID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, result, nil
}

func (d *Dispatcher) handleJobStatus(ctx context.Context, req Request) (int, any, error) {
	jobID := req.QueryStringParameters["jobId"]
	if jobID == "" {
		return badRequest("JobId is required")
	}

	result, err := d.orchestrator.GetJobStatus(ctx, jobID)
	if err != nil {
		return 0, nil, err
	}
	// A missing orchestration encodes as null.
	return http.StatusOK, result, nil
}

func (d *Dispatcher) handleCancel(ctx context.Context, req Request) (int, any, error) {
	var in jobRequest
	if err := bind(req, &in); err != nil {
		return 0, nil, err
	}
	if err := d.validate.Struct(in); err != nil {
		return badRequest("JobId is required")
	}

	if err := d.orchestrator.Cancel(ctx, in.JobID); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"success": true, "message": "Job cancelled"}, nil
}
