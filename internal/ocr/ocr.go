// Package ocr talks to an external vision language model over HTTP to
// extract text from a page image: base64-encode the image, POST JSON to
// an Ollama-style chat endpoint, read back a text field, retrying
// transient failures via avast/retry-go/v4.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries uint
	RetryBase  time.Duration // default 1s
	RetryCap   time.Duration // default 30s
	HTTPClient *http.Client
}

// Client calls a vision model's chat completion endpoint to OCR a single
// page image.
type Client struct {
	baseURL    string
	model      string
	maxRetries uint
	retryBase  time.Duration
	retryCap   time.Duration
	httpClient *http.Client
}

// New creates a Client from cfg, applying defaults for anything unset.
func New(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryCap == 0 {
		cfg.RetryCap = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		retryCap:   cfg.RetryCap,
		httpClient: cfg.HTTPClient,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatResponseMessage `json:"message"`
}

// ocrError classifies an OCR call failure for the retry predicate: network
// errors, 5xx, timeouts, and blank responses are retryable; other 4xx and
// malformed responses are not.
type ocrError struct {
	statusCode int
	retryable  bool
	cause      error
}

func (e *ocrError) Error() string {
	if e.statusCode != 0 {
		return fmt.Sprintf("ocr call failed with status %d: %v", e.statusCode, e.cause)
	}
	return fmt.Sprintf("ocr call failed: %v", e.cause)
}

func (e *ocrError) Unwrap() error { return e.cause }

// Extract OCRs one page image and returns the extracted text, retrying
// transient failures with exponential backoff up to c.maxRetries attempts.
func (c *Client) Extract(ctx context.Context, image []byte, prompt string) (string, error) {
	var text string

	err := retry.Do(
		func() error {
			t, callErr := c.call(ctx, image, prompt)
			if callErr != nil {
				return callErr
			}
			text = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(c.retryBase),
		retry.MaxDelay(c.retryCap),
		retry.RetryIf(func(err error) bool {
			var oerr *ocrError
			if errors.As(err, &oerr) {
				return oerr.retryable
			}
			return errors.Is(err, context.DeadlineExceeded)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("ocr retry exhausted: %w", err)
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, image []byte, prompt string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
		Stream: false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &ocrError{retryable: false, cause: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", &ocrError{retryable: false, cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ocrError{retryable: true, cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ocrError{retryable: true, cause: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return "", &ocrError{statusCode: resp.StatusCode, retryable: true, cause: fmt.Errorf("server error: %s", respBody)}
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return "", &ocrError{statusCode: resp.StatusCode, retryable: true, cause: fmt.Errorf("%s", respBody)}
	}
	if resp.StatusCode >= 400 {
		return "", &ocrError{statusCode: resp.StatusCode, retryable: false, cause: fmt.Errorf("%s", respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ocrError{statusCode: resp.StatusCode, retryable: false, cause: fmt.Errorf("malformed json: %w", err)}
	}

	text := strings.TrimSpace(parsed.Message.Content)
	if text == "" {
		// The upstream model occasionally returns blank on transient overload.
		return "", &ocrError{statusCode: resp.StatusCode, retryable: true, cause: errors.New("empty OCR text")}
	}
	return text, nil
}
