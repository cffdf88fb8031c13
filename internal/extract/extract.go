// Package extract defines the PDF extraction collaborator: an external
// service that turns a PDF binary into plain text and embedded images.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTooLittleText reports that a document yielded too little text to
// build a course from. The minimum is enforced by the caller, not the
// extraction service.
var ErrTooLittleText = errors.New("not enough extractable text")

// Result is the outcome of one extraction. Images are base64-encoded.
type Result struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// Extractor converts a PDF binary into text and images.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (Result, error)
}

// HTTPExtractor posts documents to an extraction service.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
}

// HTTPExtractorOption configures an HTTPExtractor.
type HTTPExtractorOption func(*HTTPExtractor)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPExtractorOption {
	return func(e *HTTPExtractor) {
		e.client = client
	}
}

// NewHTTPExtractor creates an extractor client against the given service.
func NewHTTPExtractor(baseURL string, opts ...HTTPExtractorOption) *HTTPExtractor {
	e := &HTTPExtractor{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HTTPExtractor) Extract(ctx context.Context, pdf []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(pdf))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("extractor error (status %d): %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return result, nil
}

// Mock is a test double for Extractor.
type Mock struct {
	Result Result
	Err    error
}

func (m *Mock) Extract(_ context.Context, _ []byte) (Result, error) {
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}
