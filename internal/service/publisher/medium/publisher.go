package medium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/service/publisher"
	"github.com/voice2blog/courier/pkg/util"
)

const (
	PlatformName = "medium"
	maxTags      = 5
	siteURL      = "https://medium.com"
)

// MediumPublisher publishes through the Medium REST API v1.
type MediumPublisher struct {
	logger      *zap.Logger
	transformer *MediumTransformer
	client      *http.Client
	baseURL     string
	siteURL     string
}

type mediumUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	URL      string `json:"url"`
}

type MediumCreatePostRequest struct {
	Title           string   `json:"title"`
	ContentFormat   string   `json:"contentFormat"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags,omitempty"`
	CanonicalURL    string   `json:"canonicalUrl,omitempty"`
	PublishStatus   string   `json:"publishStatus"`
	NotifyFollowers bool     `json:"notifyFollowers"`
}

type MediumPost struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AuthorID      string `json:"authorId"`
	URL           string `json:"url"`
	CanonicalURL  string `json:"canonicalUrl"`
	PublishStatus string `json:"publishStatus"`
}

type mediumErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("medium API returned status %d", e.status)
	}
	return fmt.Sprintf("medium API returned status %d: %s", e.status, e.message)
}

func NewMediumPublisher(logger *zap.Logger, baseURL string, timeout time.Duration) publisher.Publisher {
	return &MediumPublisher{
		logger:      logger,
		transformer: NewMediumTransformer(),
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		siteURL: siteURL,
	}
}

func (p *MediumPublisher) GetPlatformName() string {
	return PlatformName
}

func (p *MediumPublisher) GetFeatures() []string {
	return []string{"markdown", "tags", "canonical-url", "draft", "cover-image"}
}

func (p *MediumPublisher) ValidateCredentials(ctx context.Context, credentials map[string]string) (bool, error) {
	token := credentials["accessToken"]
	if token == "" {
		return false, errors.New("missing required credential: accessToken")
	}

	if _, err := p.me(ctx, token); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && (apiErr.status == http.StatusUnauthorized || apiErr.status == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *MediumPublisher) FormatContent(ctx context.Context, content *models.Content, imageURL string) (string, error) {
	return p.transformer.Transform(content, imageURL)
}

func (p *MediumPublisher) Publish(ctx context.Context, content *models.Content, config models.PublishConfig, imageURL string) (models.PublishResult, error) {
	token := config.Credential("accessToken")
	if token == "" {
		return models.Failed("missing required credential: accessToken"), nil
	}

	body, err := p.transformer.Transform(content, imageURL)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("failed to transform content: %w", err)
	}

	user, err := p.me(ctx, token)
	if err != nil {
		return p.failure(err)
	}

	// A tags setting replaces the content's own tags.
	tags := content.Tags
	if override := config.Setting("tags", ""); override != "" {
		tags = util.ParseTags(override)
	}

	request := MediumCreatePostRequest{
		Title:           content.Title,
		ContentFormat:   "markdown",
		Content:         body,
		Tags:            p.transformer.Tags(tags, maxTags),
		CanonicalURL:    config.Setting("canonicalUrl", ""),
		PublishStatus:   config.Setting("publishStatus", publisher.StatusDraft),
		NotifyFollowers: config.Setting("notifyFollowers", "false") == "true",
	}

	var post MediumPost
	if err := p.do(ctx, http.MethodPost, fmt.Sprintf("/v1/users/%s/posts", user.ID), token, request, &post); err != nil {
		return p.failure(err)
	}

	p.logger.Info("Medium post created",
		zap.String("post_id", post.ID),
		zap.String("publish_status", post.PublishStatus))

	return models.Succeeded(post.URL, post.ID), nil
}

// GetPublishStatus reports published when the public post page resolves. Medium has no
// public read endpoint for posts.
func (p *MediumPublisher) GetPublishStatus(ctx context.Context, platformID string, config models.PublishConfig) (string, error) {
	if platformID == "" {
		return "", errors.New("platform id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/p/%s", p.siteURL, platformID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to check post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return publisher.StatusPublished, nil
	}
	return publisher.StatusUnknown, nil
}

// failure turns API rejections into a failed result and passes transport errors through.
func (p *MediumPublisher) failure(err error) (models.PublishResult, error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return models.Failed(apiErr.Error()), nil
	}
	return models.PublishResult{}, err
}

// Helper methods

func (p *MediumPublisher) me(ctx context.Context, token string) (*mediumUser, error) {
	var user mediumUser
	if err := p.do(ctx, http.MethodGet, "/v1/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends a JSON request and decodes the "data" envelope of the response into out.
func (p *MediumPublisher) do(ctx context.Context, method, path, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "utf-8")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errs mediumErrors
		apiErr := &apiError{status: resp.StatusCode}
		if json.Unmarshal(respBody, &errs) == nil && len(errs.Errors) > 0 {
			apiErr.message = errs.Errors[0].Message
		}
		p.logger.Debug("Medium API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return apiErr
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
