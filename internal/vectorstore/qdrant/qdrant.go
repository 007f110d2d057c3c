// Package qdrant is a minimal REST client for Qdrant collections.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// PayloadVectorID is the payload key holding the caller's record ID.
// Qdrant point IDs must be UUIDs or integers, so points are keyed by a
// name-based UUID derived from it.
const PayloadVectorID = "vector_id"

// Storage talks to one Qdrant instance. Collections use cosine distance.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// PointID maps a record ID to its deterministic Qdrant point ID.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (s *Storage) Describe(ctx context.Context, index string) (int, bool, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(index), nil, &resp)
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return resp.Result.Config.Params.Vectors.Size, true, nil
}

func (s *Storage) Create(ctx context.Context, index string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(index), body, nil)
	return err
}

func (s *Storage) Upsert(ctx context.Context, index string, records []domain.StoredVector) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[PayloadVectorID] = r.ID
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(index)+"/points?wait=true", body, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, index string, vector []float64, topK int, filter vectorstore.Filter) ([]domain.Candidate, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		req["filter"] = map[string]any{"must": mustClauses(filter)}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(index)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		text, _ := r.Payload[domain.MetaText].(string)
		results = append(results, domain.Candidate{Score: r.Score, Text: text, Metadata: r.Payload})
	}
	return results, nil
}

func mustClauses(filter vectorstore.Filter) []map[string]any {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return must
}

func (s *Storage) collectionURL(index string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, index)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The HTTP status is returned even on error.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
