package vision

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/eventsync/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) config.EnrichmentConfig {
	return config.EnrichmentConfig{
		APIKey:    "test-key",
		Model:     "claude-sonnet-4-5",
		BaseURL:   baseURL,
		MaxTokens: 300,
		Timeout:   2 * time.Second,
	}
}

const okResponse = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5",
	"content": [
		{"type": "text", "text": "Datum: 15.03.2025"},
		{"type": "text", "text": "Eintritt: frei "}
	],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 900, "output_tokens": 12}
}`

func TestClient_Describe_Success(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), newTestLogger())
	text, err := c.Describe(context.Background(), "Lies das Plakat.", "https://x.org/plakat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Datum: 15.03.2025\nEintritt: frei", text)

	require.NotNil(t, gotBody)
	assert.Equal(t, "claude-sonnet-4-5", gotBody["model"])
	assert.EqualValues(t, 300, gotBody["max_tokens"])

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	img := content[0].(map[string]any)
	assert.Equal(t, "image", img["type"])
	assert.Equal(t, "https://x.org/plakat.jpg", img["source"].(map[string]any)["url"])
	assert.Equal(t, "Lies das Plakat.", content[1].(map[string]any)["text"])
}

func TestClient_Describe_ServiceError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), newTestLogger()).Describe(context.Background(), "x", "https://x.org/a.png")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "sdk retries must be disabled")
}

func TestClient_Describe_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	_, err := New(cfg, newTestLogger()).Describe(context.Background(), "x", "https://x.org/a.png")
	require.Error(t, err)
}

func TestClient_Extract_SendsTextAndImages(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), newTestLogger())
	text, err := c.Extract(context.Background(), "Finde Termine.", "Basteln am 03.04.", []string{"https://x.org/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "Datum: 15.03.2025\nEintritt: frei", text)

	require.NotNil(t, gotBody)
	assert.EqualValues(t, 1024, gotBody["max_tokens"], "extraction gets a larger answer budget")
	content := gotBody["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 3)
	assert.Equal(t, "Finde Termine.", content[0].(map[string]any)["text"])
	assert.Equal(t, "Webseiten-Inhalt:\nBasteln am 03.04.", content[1].(map[string]any)["text"])
	assert.Equal(t, "image", content[2].(map[string]any)["type"])
}

func TestClient_Extract_ServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), newTestLogger()).Extract(context.Background(), "x", "y", nil)
	require.Error(t, err)
}
