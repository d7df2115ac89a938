// Package ocr adapts the external document-OCR service: a single call
// taking image bytes plus language and page-segmentation mode, returning
// recognized text and word-level boxes. OCR runs out of process; this
// adapter only owns the HTTP transport.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Box is a recognized word/line's bounding box within the source image.
type Box struct {
	Text       string  `json:"text"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Confidence float64 `json:"confidence"`
}

// Result is the OCR service's normalized reply.
type Result struct {
	Text  string `json:"text"`
	Boxes []Box  `json:"boxes"`
}

// Client is the OCR adapter.
type Client struct {
	httpClient *http.Client
	endpoint   string
	language   string
	psmMode    int
}

// NewClient builds an OCR Client from the resolved configuration.
func NewClient(cfg *config.OCRConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		endpoint:   cfg.Endpoint,
		language:   cfg.Language,
		psmMode:    cfg.PSMMode,
	}
}

type ocrRequest struct {
	Image    []byte `json:"image"`
	Language string `json:"language"`
	PSMMode  int    `json:"psm_mode"`
}

// Ocr submits a rendered page image to the OCR service and returns the
// recognized text and word-level boxes.
func (c *Client) Ocr(ctx context.Context, image []byte) (Result, error) {
	body, err := json.Marshal(ocrRequest{Image: image, Language: c.language, PSMMode: c.psmMode})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encoding ocr request: %v", pipeline.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: building ocr request: %v", pipeline.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: ocr request failed: %v", pipeline.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: ocr service returned status %d", pipeline.ErrUpstream, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading ocr response: %v", pipeline.ErrUpstream, err)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: decoding ocr response: %v", pipeline.ErrUpstream, err)
	}
	return out, nil
}

// Healthy pings the OCR service's /health route.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: building health request: %v", pipeline.ErrInternal, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ocr health check failed: %v", pipeline.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ocr health check returned status %d", pipeline.ErrUpstream, resp.StatusCode)
	}
	return nil
}
