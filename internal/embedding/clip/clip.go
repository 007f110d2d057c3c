// Package clip is a client for CLIP-style inference servers that embed
// images and text into one shared vector space.
//
// The wire format follows the Jina embeddings API: each input is either
// {"text": "..."} or {"image": "<base64>"}, and vectors come back under
// data[].embedding ordered by data[].index.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/embedding"
)

var _ domain.VisualEmbedder = (*Client)(nil)

const (
	DefaultBaseURL = "http://localhost:51000/v1"
	DefaultModel   = "clip-vit-base-patch32"
	DefaultTimeout = 60 * time.Second
)

// Config configures the visual embedding client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Client embeds images and text through the shared CLIP towers.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient creates a visual embedding client.
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
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Ping embeds a short probe text.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EmbedText(ctx, "ping")
	return err
}

// EmbedImage returns the unit-length image-tower embedding of the file at path.
func (c *Client) EmbedImage(ctx context.Context, path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return c.embed(ctx, input{Image: base64.StdEncoding.EncodeToString(data)})
}

// EmbedText returns the unit-length text-tower embedding of text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return c.embed(ctx, input{Text: text})
}

type input struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type request struct {
	Model string  `json:"model"`
	Input []input `json:"input"`
}

type response struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) embed(ctx context.Context, in input) ([]float64, error) {
	body, err := json.Marshal(request{Model: c.model, Input: []input{in}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Upstream("visual_embedding", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Upstream("visual_embedding", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.Upstream("visual_embedding", fmt.Errorf("decode: %w", err))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, domain.Upstream("visual_embedding", fmt.Errorf("no embedding returned"))
	}
	return embedding.Normalize(out.Data[0].Embedding), nil
}
