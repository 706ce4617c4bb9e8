// Package ai talks to an OpenAI-compatible image API to draw activity icons.
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

	"golang.org/x/time/rate"

	"sproutcal/internal/log"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "dall-e-3"
	DefaultSize    = "1024x1024"

	promptTemplate = "A simple, friendly flat icon for a child's activity called %q. " +
		"Bright colors, centered, plain white background, no text."
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	// Rate is the sustained request rate per second; <= 0 means 1 per 10s.
	Rate    float64
	Timeout time.Duration
}

// Client is a minimal image-generation client. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	size       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("image api http %d: %s", e.StatusCode, e.Body)
}

var ErrNoAPIKey = errors.New("ai: missing api key")

// NewClient validates opts and returns a ready client.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = DefaultSize
	}
	every := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		every = rate.Every(10 * time.Second)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		size:       size,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(every, 1),
	}, nil
}

type imagesRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateIcon returns a data URL ("data:image/png;base64,...") or the remote
// URL the API handed back.
func (c *Client) GenerateIcon(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("ai: activity name required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ai: rate limiter: %w", err)
	}

	req := imagesRequest{
		Model:  c.model,
		Prompt: fmt.Sprintf(promptTemplate, name),
		N:      1,
		Size:   c.size,
	}
	// gpt-image models reject response_format and always answer with b64.
	if !strings.HasPrefix(strings.ToLower(c.model), "gpt-image-") {
		req.ResponseFormat = "b64_json"
	}

	var resp imagesResponse
	start := time.Now()
	if err := c.do(ctx, http.MethodPost, "/v1/images/generations", req, &resp); err != nil {
		return "", err
	}
	log.Debug("image generated", "name", name, "model", c.model, "elapsed", time.Since(start).String())

	if len(resp.Data) == 0 {
		return "", errors.New("ai: no image returned")
	}
	item := resp.Data[0]
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		return "data:image/png;base64," + b64, nil
	}
	if u := strings.TrimSpace(item.URL); u != "" {
		return u, nil
	}
	return "", errors.New("ai: image response missing b64_json and url")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ai: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("ai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ai: decode response: %w", err)
	}
	return nil
}
