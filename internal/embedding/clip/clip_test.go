package clip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
)

func TestEmbedImage_SendsBase64AndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "car.png")
	require.NoError(t, os.WriteFile(path, []byte("PNGDATA"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("PNGDATA")), req.Input[0].Image)
		assert.Empty(t, req.Input[0].Text)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[3,4]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	v, err := c.EmbedImage(context.Background(), path)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-9)
}

func TestEmbedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a red car", req.Input[0].Text)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,2]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	v, err := c.EmbedText(context.Background(), "a red car")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, v)
}

func TestEmbed_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	err = c.Ping(context.Background())

	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "visual_embedding", ue.Op)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestEmbedImage_MissingFile(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	_, err = c.EmbedImage(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
