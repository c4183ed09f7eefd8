package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
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

func testConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Timeout:        2 * time.Second,
		UserAgents:     []string{"agent-a", "agent-b"},
		Referers:       []string{"https://www.google.com/"},
		AcceptLanguage: "de-DE,de;q=0.9",
		MaxBodyBytes:   1 << 20,
	}
}

func TestClient_Get_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains([]string{"agent-a", "agent-b"}, r.Header.Get("User-Agent")) {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if got := r.Header.Get("Referer"); got != "https://www.google.com/" {
			t.Errorf("Referer = %q", got)
		}
		if got := r.Header.Get("Accept-Language"); got != "de-DE,de;q=0.9" {
			t.Errorf("Accept-Language = %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h1>Veranstaltungen</h1></body></html>`))
	}))
	defer srv.Close()

	c := New(testConfig(), newTestLogger())
	page, err := c.Get(context.Background(), srv.URL+"/kalender")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, srv.URL+"/kalender", page.URL)
	assert.False(t, page.FetchedAt.IsZero())

	doc, err := page.Document()
	require.NoError(t, err)
	assert.Equal(t, "Veranstaltungen", doc.Find("h1").Text())
}

func TestClient_Get_DecodesLatin1(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Bühne" in Latin-1.
		_, _ = w.Write([]byte("<p>B\xfchne</p>"))
	}))
	defer srv.Close()

	page, err := New(testConfig(), newTestLogger()).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "Bühne")
}

func TestClient_Get_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(testConfig(), newTestLogger()).Get(context.Background(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClient_Get_NoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(testConfig(), newTestLogger()).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Get_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond

	_, err := New(cfg, newTestLogger()).Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestClient_Get_BodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 100

	_, err := New(cfg, newTestLogger()).Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestClient_Get_BodyAtLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 100

	page, err := New(cfg, newTestLogger()).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Body, 100)
}
