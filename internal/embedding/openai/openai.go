package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/embedding"
)

var _ domain.TextEmbedder = (*Client)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 30 * time.Second
)

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	client     *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// Dimension is optional; when zero it is learned from the first response.
	Dimension int
	BatchSize int
}

// NewClient creates a new embeddings client using the provided configuration.
// An empty APIKeyEnv means the endpoint needs no key (local servers).
func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedding.DefaultBatchSize
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
		sleep:      sleepCtx,
		dimension:  cfg.Dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors,
// or zero before the first response when none was configured.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Ping checks that the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Upstream("embedding", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Upstream("embedding", fmt.Errorf("ping: %s", resp.Status))
	}
	return nil
}

// Embed returns a unit-length embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in groups of the configured batch size.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return embedding.EmbedInBatches(ctx, texts, c.batchSize, c.request)
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape for single inputs.
	Embedding []float64 `json:"embedding"`
}

func (c *Client) request(ctx context.Context, texts []string) ([][]float64, error) {
	data, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, lastDelay(lastErr, attempt-1)); err != nil {
				return nil, err
			}
		}
		vecs, err := c.do(ctx, url, data, len(texts))
		if err == nil {
			return vecs, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return nil, domain.Upstream("embedding", err)
		}
		lastErr = err
	}
	return nil, domain.Upstream("embedding", lastErr)
}

func (c *Client) do(ctx context.Context, url string, body []byte, n int) ([][]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &retryableStatus{status: resp.Status, retryAfter: resp.Header.Get("Retry-After")}
	}
	if resp.StatusCode >= 300 {
		return nil, &permanentError{fmt.Errorf("openai embeddings failed: %s", resp.Status)}
	}
	if err != nil {
		return nil, err
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	var vecs [][]float64
	switch {
	case len(out.Data) > 0:
		sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		for _, d := range out.Data {
			vecs = append(vecs, d.Embedding)
		}
	case len(out.Embedding) > 0 && n == 1:
		vecs = [][]float64{out.Embedding}
	}
	if len(vecs) != n {
		return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(vecs))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, errors.New("no embedding returned")
		}
		embedding.Normalize(v)
	}
	if err := c.learnDimension(len(vecs[0])); err != nil {
		return nil, &permanentError{err}
	}
	return vecs, nil
}

func (c *Client) learnDimension(d int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = d
		return nil
	}
	if c.dimension != d {
		return fmt.Errorf("embedding dimension changed from %d to %d", c.dimension, d)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type retryableStatus struct {
	status     string
	retryAfter string
}

func (e *retryableStatus) Error() string { return "openai embeddings failed: " + e.status }

// lastDelay respects Retry-After when the previous failure carried one.
func lastDelay(err error, attempt int) time.Duration {
	var rs *retryableStatus
	if errors.As(err, &rs) && rs.retryAfter != "" {
		if secs, err := strconv.Atoi(rs.retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return retryDelay(attempt)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
