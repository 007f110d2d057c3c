package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
)

func newTestClient(t *testing.T, url string, batch int) (*Client, *[]time.Duration) {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_EMBED_KEY", Model: "m", BatchSize: batch})
	require.NoError(t, err)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

// embedServer answers every input with [len(input), 0] in reversed data order.
func embedServer(t *testing.T, requests *[][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req.Input)

		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float64{float64(len(req.Input[i])), 0}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_EMPTY_KEY"})
	assert.Error(t, err)
}

func TestEmbedBatch_OrdersByIndexAndNormalizes(t *testing.T) {
	var requests [][]string
	srv := embedServer(t, &requests)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 2)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, requests)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, v[0], 1e-9)
	}
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,3,4]}]}`))
		}
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, 0)
	v, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.6, 0.8}, v, 1e-9)
	assert.Equal(t, []time.Duration{2 * time.Second, 400 * time.Millisecond}, *slept)
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 0)
	_, err := c.Embed(context.Background(), "q")

	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "embedding", ue.Op)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[2,0]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 0)
	v, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 0)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, retryDelay(2))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
