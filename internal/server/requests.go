package server

import (
	"github.com/voice2blog/courier/internal/models"
)

type validateCredentialsRequest struct {
	Platform    string            `json:"platform" validate:"required"`
	Credentials map[string]string `json:"credentials" validate:"required"`
}

type publishRequest struct {
	ContentID       string                          `json:"contentId" validate:"required"`
	Platforms       []string                        `json:"platforms" validate:"required"`
	Configs         map[string]models.PublishConfig `json:"configs" validate:"required"`
	ImageURL        string                          `json:"imageUrl"`
	RetryFailedOnly bool                            `json:"retryFailedOnly"`
}

type statusRequest struct {
	ContentID  string                `json:"contentId" validate:"required"`
	Platform   string                `json:"platform" validate:"required"`
	PlatformID string                `json:"platformId" validate:"required"`
	Config     *models.PublishConfig `json:"config" validate:"required"`
}

type formatPreviewRequest struct {
	ContentID string `json:"contentId" validate:"required"`
	Platform  string `json:"platform" validate:"required"`
	ImageURL  string `json:"imageUrl"`
}

type orchestrateRequest struct {
	ContentID string                          `json:"contentId" validate:"required"`
	Platforms []string                        `json:"platforms" validate:"required"`
	Configs   map[string]models.PublishConfig `json:"configs" validate:"required"`
	ImageURL  string                          `json:"imageUrl"`
}

// jobRequest is the body of retry and cancel.
type jobRequest struct {
	JobID string `json:"jobId" validate:"required"`
}

type platformsResponse struct {
	Platforms []models.PlatformInfo `json:"platforms"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
