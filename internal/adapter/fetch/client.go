// Package fetch retrieves HTML pages over HTTP with browser-like headers.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/heartmarshall/eventsync/internal/config"
)

var (
	// ErrUnexpectedStatus is wrapped by StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrBodyTooLarge is returned when a response exceeds http.max_body_bytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Page is a fetched HTML document, decoded to UTF-8.
type Page struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Document parses the page body.
func (p Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.URL, err)
	}
	return doc, nil
}

// Client fetches pages. Requests are never retried.
type Client struct {
	httpClient     *http.Client
	userAgents     []string
	referers       []string
	acceptLanguage string
	maxBodyBytes   int64
	log            *slog.Logger
}

// New creates a Client from the HTTP section of the configuration.
func New(cfg config.HTTPConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		userAgents:     cfg.UserAgents,
		referers:       cfg.Referers,
		acceptLanguage: cfg.AcceptLanguage,
		maxBodyBytes:   cfg.MaxBodyBytes,
		log:            logger.With("adapter", "fetch"),
	}
}

// Get fetches rawURL. Non-2xx responses return a *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: create request: %w", err)
	}
	c.decorate(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Page{}, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if c.maxBodyBytes > 0 {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
		if err != nil {
			return Page{}, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
		}
		if int64(len(raw)) > c.maxBodyBytes {
			return Page{}, fmt.Errorf("fetch %s: %w (limit %d bytes)", rawURL, ErrBodyTooLarge, c.maxBodyBytes)
		}
		body = bytes.NewReader(raw)
	}
	decoded, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: decode charset: %w", rawURL, err)
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	c.log.DebugContext(ctx, "page fetched",
		slog.String("url", finalURL),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("took", time.Since(start)),
	)

	return Page{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Body:       data,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (c *Client) decorate(req *http.Request) {
	if ua := pick(c.userAgents); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if ref := pick(c.referers); ref != "" {
		req.Header.Set("Referer", ref)
	}
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
}

func pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[rand.IntN(len(list))]
}
