package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"anonpress.org/internal/alias"
)

const defaultTimeout = 10 * time.Second

// Client calls an external NER service over HTTP, one request per sentence
// unit. It satisfies alias.Detector.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ alias.Detector = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a detector client for the tagging service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("detector base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Spans []alias.Span `json:"spans"`
}

// Detect posts one sentence unit to the tagging service and returns its
// spans in detection order.
func (c *Client) Detect(ctx context.Context, unit string) ([]alias.Span, error) {
	if strings.TrimSpace(unit) == "" {
		return nil, nil
	}
	payload, err := json.Marshal(detectRequest{Text: unit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tag", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tagging service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tagging service returned %d", resp.StatusCode)
	}
	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tagging response: %w", err)
	}
	return out.Spans, nil
}
