// Package embedding implements speaker enrollment and verification on top of
// a speaker-embedding service: clips are uploaded as WAV, the service returns
// a fixed-size voice embedding, and profiles are compared by cosine
// similarity.
//
// The service contract is deliberately small so that any x-vector or ECAPA
// model can be put behind it:
//
//	POST <base>/embed   (Content-Type: audio/wav)
//	200 {"embedding": [0.12, -0.03, ...]}
package embedding

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

	"github.com/MrWong99/voxpipe/pkg/audio/wav"
	"github.com/MrWong99/voxpipe/pkg/provider"
)

// DefaultBaseURL is the address of a locally running embedding service.
const DefaultBaseURL = "http://localhost:8011"

const embedPath = "/embed"

// Embedder computes a voice embedding for a clip of 16-bit mono PCM.
type Embedder interface {
	Embed(ctx context.Context, pcm []int16, sampleRate int) ([]float32, error)
}

// EmbedderFunc adapts a function to [Embedder].
type EmbedderFunc func(ctx context.Context, pcm []int16, sampleRate int) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, pcm []int16, sampleRate int) ([]float32, error) {
	return f(ctx, pcm, sampleRate)
}

// Client is the HTTP [Embedder]. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Embedder = (*Client)(nil)

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient returns a Client for the service at baseURL. An empty baseURL
// selects [DefaultBaseURL].
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, pcm []int16, sampleRate int) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+embedPath, bytes.NewReader(wav.Encode(pcm, sampleRate)))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: POST %s: %w", embedPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("embedding: POST %s returned status %d: %s", embedPath, resp.StatusCode, strings.TrimSpace(string(body)))
		if provider.IsLimitStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %w", provider.ErrActivationLimit, err)
		}
		return nil, err
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("embedding: service returned an empty embedding")
	}
	return out.Embedding, nil
}
