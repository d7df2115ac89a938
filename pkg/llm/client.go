// Package llm adapts the external LLM interpretation service: a single
// completion entry point used by C4's classification prompt, C6's
// LLM-vision measurement fallback, and C7's
// interpretation stage. The caller is responsible for JSON extraction
// (pkg/jsonextract); this adapter only owns the transport, timeout, and
// retry-on-429/5xx concerns.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Image is an inline image attachment for a vision-capable prompt (C6's
// LLM-vision fallback, C4's first-page thumbnail classification).
type Image struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// Completer is the adapter contract the pipeline stages consume. *Client is
// the production implementation; tests substitute a canned fake.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteVision(ctx context.Context, prompt string, images []Image) (string, error)
}

// Client wraps the Anthropic Messages API for the pipeline's text and
// vision prompts.
type Client struct {
	api        anthropic.Client
	model      string
	maxTokens  int64
	timeout    time.Duration
	maxRetries int

	// inflight bounds concurrent upstream calls per worker process to
	// respect upstream quotas; exhausted permits make the stage suspend
	// until one frees, bounded by the stage timeout.
	inflight *semaphore.Weighted
}

// NewClient builds a Client from the resolved LLM configuration. The API
// key is read from the environment variable named by cfg.APIKeyEnv, never
// logged or embedded in config files.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", pipeline.ErrInternal, cfg.APIKeyEnv)
	}
	maxConcurrent := cfg.MaxConcurrentRequests
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Client{
		api:        anthropic.NewClient(option.WithAPIKey(key)),
		model:      cfg.Model,
		maxTokens:  int64(cfg.MaxTokens),
		timeout:    cfg.RequestTimeout,
		maxRetries: cfg.MaxRetries,
		inflight:   semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Complete sends a single-turn text prompt and returns the raw reply text.
// Callers extract JSON from the reply with pkg/jsonextract rather than
// trusting the model to emit pure JSON.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.completeWithImages(ctx, prompt, nil)
}

// CompleteVision sends a prompt plus one or more page images (C6's
// LLM-vision fallback, C4's thumbnail classification).
func (c *Client) CompleteVision(ctx context.Context, prompt string, images []Image) (string, error) {
	return c.completeWithImages(ctx, prompt, images)
}

func (c *Client) completeWithImages(ctx context.Context, prompt string, images []Image) (string, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for an upstream slot: %v", pipeline.ErrUpstream, err)
	}
	defer c.inflight.Release(1)

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		msg, err := c.api.Messages.New(reqCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(blocks...),
			},
		})
		cancel()

		if err == nil {
			return extractText(msg), nil
		}

		lastErr = err
		if !retryableTransportError(err) {
			break
		}
	}

	return "", fmt.Errorf("%w: llm completion failed: %v", pipeline.ErrUpstream, lastErr)
}

func extractText(msg *anthropic.Message) string {
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// retryableTransportError reports whether an adapter error is eligible for
// the adapter's own exponential backoff (429/5xx, or an exceeded context
// deadline), distinct from the orchestrator's Phase A/B/C retry policy.
func retryableTransportError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Second * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", pipeline.ErrCancelled, ctx.Err())
	}
}
