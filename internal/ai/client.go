// Package ai implements the HTTP client for the external analysis service.
//
// The service exposes two endpoints: the analyze endpoint, which receives a
// consultation transcript and returns a structured summary envelope, and the
// question endpoint, which answers a follow-up question about an existing
// summary. Responses are treated as opaque JSON and handed back to the
// caller verbatim; this package does not interpret envelope contents beyond
// transport-level success.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUpstream indicates the analysis service returned a non-success status
// or an unreadable body.
var ErrUpstream = errors.New("ai: upstream request failed")

// Client calls the external analysis service over HTTP.
type Client struct {
	// BaseURL is the analyze endpoint; the question endpoint lives at
	// BaseURL + "/question".
	BaseURL string

	// HTTPClient is the underlying transport. Defaults to a client with a
	// generous timeout; per-call deadlines come from the context.
	HTTPClient *http.Client
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// analyzeRequest is the analyze endpoint payload.
type analyzeRequest struct {
	Chat string `json:"chat"`
	Date string `json:"date"`
}

// questionRequest is the question endpoint payload. Summary is the raw
// envelope previously returned by Analyze.
type questionRequest struct {
	Question string          `json:"question"`
	Summary  json.RawMessage `json:"summary"`
}

// Analyze submits a transcript for analysis and returns the raw response
// envelope as a JSON string.
func (c *Client) Analyze(ctx context.Context, chat, date string) (string, error) {
	return c.post(ctx, c.BaseURL, analyzeRequest{Chat: chat, Date: date})
}

// Ask submits a follow-up question about a stored summary and returns the
// raw answer body.
func (c *Client) Ask(ctx context.Context, question string, summary json.RawMessage) (string, error) {
	return c.post(ctx, c.BaseURL+"/question", questionRequest{Question: question, Summary: summary})
}

func (c *Client) post(ctx context.Context, url string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return string(raw), nil
}

// UnwrapAnswer normalizes an answer body for display. If, ignoring
// surrounding whitespace, the body both starts and ends with a double
// quote, the outer quotes are stripped and the two escape sequences \" and
// \n inside are decoded. Anything else is returned verbatim.
func UnwrapAnswer(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\n`, "\n")
		return inner
	}
	return raw
}
