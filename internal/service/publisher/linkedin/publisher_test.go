package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/models"
)

func newTestServer(t *testing.T, posts *[]UGCPostRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Invalid access token","status":401}`))
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/userinfo":
			w.Write([]byte(`{"sub":"abc123","name":"Writer"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/ugcPosts":
			if r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
				t.Errorf("missing restli protocol header")
			}
			var req UGCPostRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding post request: %v", err)
			}
			*posts = append(*posts, req)
			w.Header().Set("X-RestLi-Id", "urn:li:share:789")
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/ugcPosts/urn:li:share:789":
			w.Write([]byte(`{"id":"urn:li:share:789","lifecycleState":"PUBLISHED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestPublish(t *testing.T) {
	var posts []UGCPostRequest
	server := newTestServer(t, &posts)
	defer server.Close()

	p := NewLinkedInPublisher(zap.NewNop(), server.URL, 5*time.Second)
	content := &models.Content{
		Title: "Voice Notes",
		Body:  "<h2>Intro</h2><p>First   paragraph.</p><ul><li>one</li></ul>",
		Tags:  []string{"machine learning"},
	}
	config := models.PublishConfig{Credentials: map[string]string{"accessToken": "good-token"}}

	result, err := p.Publish(context.Background(), content, config, "https://img.example.com/cover.png")
	if err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}
	if !result.Success || result.PlatformID != "urn:li:share:789" {
		t.Fatalf("Publish() = %+v, want success", result)
	}
	if result.PlatformURL != "https://www.linkedin.com/feed/update/urn:li:share:789" {
		t.Errorf("PlatformURL = %q", result.PlatformURL)
	}

	sent := posts[0]
	if sent.Author != "urn:li:person:abc123" {
		t.Errorf("Author = %q, want resolved from userinfo", sent.Author)
	}
	share := sent.SpecificContent.ShareContent
	if share.ShareMediaCategory != "ARTICLE" || len(share.Media) != 1 {
		t.Errorf("share = %+v, want one article media", share)
	}
	want := "Voice Notes\n\nIntro\n\nFirst paragraph.\n\n• one\n\n#MachineLearning"
	if share.ShareCommentary.Text != want {
		t.Errorf("commentary = %q, want %q", share.ShareCommentary.Text, want)
	}
}

func TestPublishRejected(t *testing.T) {
	var posts []UGCPostRequest
	server := newTestServer(t, &posts)
	defer server.Close()

	p := NewLinkedInPublisher(zap.NewNop(), server.URL, 5*time.Second)
	config := models.PublishConfig{Credentials: map[string]string{"accessToken": "expired", "authorUrn": "urn:li:person:x"}}

	result, err := p.Publish(context.Background(), &models.Content{Title: "t", Body: "b"}, config, "")
	if err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "Invalid access token") {
		t.Errorf("Publish() = %+v, want failure with API message", result)
	}
}

func TestGetPublishStatus(t *testing.T) {
	var posts []UGCPostRequest
	server := newTestServer(t, &posts)
	defer server.Close()

	p := NewLinkedInPublisher(zap.NewNop(), server.URL, 5*time.Second)
	config := models.PublishConfig{Credentials: map[string]string{"accessToken": "good-token"}}

	got, err := p.GetPublishStatus(context.Background(), "urn:li:share:789", config)
	if err != nil {
		t.Fatalf("GetPublishStatus() unexpected error: %v", err)
	}
	if got != "published" {
		t.Errorf("GetPublishStatus() = %q, want published", got)
	}

	got, err = p.GetPublishStatus(context.Background(), "urn:li:share:000", config)
	if err != nil {
		t.Fatalf("GetPublishStatus() unexpected error: %v", err)
	}
	if got != "unknown" {
		t.Errorf("GetPublishStatus(missing) = %q, want unknown", got)
	}
}

func TestTransformTruncates(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	got, err := NewLinkedInTransformer(maxCommentary).Transform(&models.Content{Body: long, Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("Transform() unexpected error: %v", err)
	}
	if n := utf8.RuneCountInString(got); n > maxCommentary {
		t.Errorf("len = %d runes, want <= %d", n, maxCommentary)
	}
	if !strings.HasSuffix(got, "#Go") {
		t.Errorf("Transform() should keep hashtags, got suffix %q", got[len(got)-10:])
	}
}
