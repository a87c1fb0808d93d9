package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/internal/service/publisher"
)

const (
	PlatformName = "linkedin"
	// maxCommentary is the share text limit of the UGC API, in characters.
	maxCommentary = 3000
	feedURL       = "https://www.linkedin.com/feed/update/"
)

// LinkedInPublisher shares posts through the LinkedIn UGC API.
type LinkedInPublisher struct {
	logger      *zap.Logger
	transformer *LinkedInTransformer
	client      *http.Client
	baseURL     string
}

type userInfo struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string  `json:"status"`
	OriginalURL string  `json:"originalUrl"`
	Title       ugcText `json:"title"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type UGCPostRequest struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent ugcShareContent `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetwork string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

type ugcPost struct {
	ID             string `json:"id"`
	LifecycleState string `json:"lifecycleState"`
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("linkedin API returned status %d", e.status)
	}
	return fmt.Sprintf("linkedin API returned status %d: %s", e.status, e.message)
}

func NewLinkedInPublisher(logger *zap.Logger, baseURL string, timeout time.Duration) publisher.Publisher {
	return &LinkedInPublisher{
		logger:      logger,
		transformer: NewLinkedInTransformer(maxCommentary),
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *LinkedInPublisher) GetPlatformName() string {
	return PlatformName
}

func (p *LinkedInPublisher) GetFeatures() []string {
	return []string{"plain-text", "hashtags", "image-link"}
}

func (p *LinkedInPublisher) ValidateCredentials(ctx context.Context, credentials map[string]string) (bool, error) {
	token := credentials["accessToken"]
	if token == "" {
		return false, errors.New("missing required credential: accessToken")
	}

	if _, err := p.userInfo(ctx, token); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && (apiErr.status == http.StatusUnauthorized || apiErr.status == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *LinkedInPublisher) FormatContent(ctx context.Context, content *models.Content, imageURL string) (string, error) {
	return p.transformer.Transform(content)
}

func (p *LinkedInPublisher) Publish(ctx context.Context, content *models.Content, config models.PublishConfig, imageURL string) (models.PublishResult, error) {
	token := config.Credential("accessToken")
	if token == "" {
		return models.Failed("missing required credential: accessToken"), nil
	}

	text, err := p.transformer.Transform(content)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("failed to transform content: %w", err)
	}

	author := config.Credential("authorUrn")
	if author == "" {
		info, err := p.userInfo(ctx, token)
		if err != nil {
			return p.failure(err)
		}
		author = "urn:li:person:" + info.Sub
	}

	request := UGCPostRequest{
		Author:         author,
		LifecycleState: "PUBLISHED",
	}
	request.Visibility.MemberNetwork = config.Setting("visibility", "PUBLIC")
	share := ugcShareContent{
		ShareCommentary:    ugcText{Text: text},
		ShareMediaCategory: "NONE",
	}
	if imageURL != "" {
		share.ShareMediaCategory = "ARTICLE"
		share.Media = []ugcMedia{{Status: "READY", OriginalURL: imageURL, Title: ugcText{Text: content.Title}}}
	}
	request.SpecificContent.ShareContent = share

	var post ugcPost
	header, err := p.do(ctx, http.MethodPost, "/v2/ugcPosts", token, request, &post)
	if err != nil {
		return p.failure(err)
	}

	postID := header.Get("X-RestLi-Id")
	if postID == "" {
		postID = post.ID
	}

	p.logger.Info("LinkedIn post created", zap.String("post_id", postID))

	return models.Succeeded(feedURL+postID, postID), nil
}

func (p *LinkedInPublisher) GetPublishStatus(ctx context.Context, platformID string, config models.PublishConfig) (string, error) {
	token := config.Credential("accessToken")
	if token == "" {
		return "", errors.New("missing required credential: accessToken")
	}
	if platformID == "" {
		return "", errors.New("platform id is required")
	}

	var post ugcPost
	if _, err := p.do(ctx, http.MethodGet, "/v2/ugcPosts/"+url.PathEscape(platformID), token, nil, &post); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return publisher.StatusUnknown, nil
		}
		return "", err
	}

	if post.LifecycleState == "" {
		return publisher.StatusUnknown, nil
	}
	return strings.ToLower(post.LifecycleState), nil
}

func (p *LinkedInPublisher) failure(err error) (models.PublishResult, error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return models.Failed(apiErr.Error()), nil
	}
	return models.PublishResult{}, err
}

// Helper methods

func (p *LinkedInPublisher) userInfo(ctx context.Context, token string) (*userInfo, error) {
	var info userInfo
	if _, err := p.do(ctx, http.MethodGet, "/v2/userinfo", token, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *LinkedInPublisher) do(ctx context.Context, method, path, token string, in, out any) (http.Header, error) {
	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Message string `json:"message"`
		}
		apiErr := &apiError{status: resp.StatusCode}
		if json.Unmarshal(respBody, &body) == nil {
			apiErr.message = body.Message
		}
		p.logger.Debug("LinkedIn API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return nil, apiErr
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}
