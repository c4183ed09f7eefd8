// Package vision asks an Anthropic model to read event posters and to pull
// events out of page text.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/heartmarshall/eventsync/internal/config"
)

// Client sends one image reference plus an instruction per call.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	log       *slog.Logger
}

// New creates a Client from the enrichment configuration. The SDK's own
// retries are disabled; a failed call is simply discarded by the caller.
func New(cfg config.EnrichmentConfig, logger *slog.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		log:       logger.With("adapter", "vision"),
	}
}

// extractMinTokens leaves room for several events in one JSON answer.
const extractMinTokens = 1024

// Describe returns the model's text answer for the image at imageURL.
func (c *Client) Describe(ctx context.Context, instruction, imageURL string) (string, error) {
	text, err := c.send(ctx, c.maxTokens,
		anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: imageURL}),
		anthropic.NewTextBlock(instruction),
	)
	if err != nil {
		return "", fmt.Errorf("vision: describe %s: %w", imageURL, err)
	}
	return text, nil
}

// Extract sends page text plus optional images with an instruction and
// returns the model's text answer.
func (c *Client) Extract(ctx context.Context, instruction, content string, imageURLs []string) (string, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(instruction),
		anthropic.NewTextBlock("Webseiten-Inhalt:\n" + content),
	}
	for _, u := range imageURLs {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: u}))
	}
	text, err := c.send(ctx, max(c.maxTokens, extractMinTokens), blocks...)
	if err != nil {
		return "", fmt.Errorf("vision: extract: %w", err)
	}
	return text, nil
}

func (c *Client) send(ctx context.Context, maxTokens int64, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", err
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	c.log.DebugContext(ctx, "model response",
		slog.Int("blocks", len(blocks)),
		slog.Int64("output_tokens", msg.Usage.OutputTokens),
		slog.Duration("took", time.Since(start)),
	)

	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
