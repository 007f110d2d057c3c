package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeIngester struct {
	res     service.IngestResult
	err     error
	path    string
	session domain.SessionID
}

func (f *fakeIngester) IngestFile(_ context.Context, path string, session domain.SessionID) (service.IngestResult, error) {
	f.path, f.session = path, session
	f.res.Session = session
	return f.res, f.err
}

type fakeAnswerer struct {
	ans      service.Answer
	err      error
	question string
	session  domain.SessionID
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, session domain.SessionID) (service.Answer, error) {
	f.question, f.session = q, session
	return f.ans, f.err
}

type fakeModels struct{ status map[string]bool }

func (f fakeModels) Warmup(context.Context) map[string]bool { return f.status }
func (f fakeModels) Status() map[string]bool                { return f.status }

type fakeCache struct{ n int }

func (f *fakeCache) Clear()   { f.n = 0 }
func (f *fakeCache) Len() int { return f.n }

type harness struct {
	srv   *Server
	ing   *fakeIngester
	ans   *fakeAnswerer
	cache *fakeCache
	dir   string
}

func newHarness(t *testing.T, status map[string]bool) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	h := &harness{
		ing:   &fakeIngester{res: service.IngestResult{Modality: "document", Chunks: 4}},
		ans:   &fakeAnswerer{ans: service.Answer{Text: "42"}},
		cache: &fakeCache{n: 3},
		dir:   t.TempDir(),
	}
	h.srv = New(h.ing, h.ans, fakeModels{status: status}, h.cache, Config{UploadDir: h.dir}, log)
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func uploadRequest(t *testing.T, name, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["message"], "running")

	w = h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestWarmup(t *testing.T) {
	h := newHarness(t, map[string]bool{"clip": true, "blip": false})
	w := h.do(httptest.NewRequest(http.MethodGet, "/warmup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, map[string]any{"clip": true, "blip": false}, body["models"])

	h = newHarness(t, map[string]bool{"clip": true})
	body = decode(t, h.do(httptest.NewRequest(http.MethodGet, "/warmup", nil)))
	assert.Equal(t, "ready", body["status"])

	body = decode(t, h.do(httptest.NewRequest(http.MethodGet, "/models/status", nil)))
	assert.Equal(t, map[string]any{"clip": true}, body)
}

func TestIngestFile_SavesUploadAndMintsSession(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(uploadRequest(t, "notes.txt", "hello", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "document", body["modality"])
	assert.Equal(t, float64(4), body["chunks"])
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, body["session_id"], h.ing.session.String())

	data, err := os.ReadFile(h.ing.path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, strings.HasPrefix(h.ing.path, h.dir))
	assert.Equal(t, "notes.txt", filepath.Base(h.ing.path))
}

func TestIngestFile_ExistingSessionAndImage(t *testing.T) {
	h := newHarness(t, nil)
	h.ing.res = service.IngestResult{Modality: "image", Chunks: 1}

	w := h.do(uploadRequest(t, "../../car.png", "png", map[string]string{"session_id": "abc"}))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, "image", body["modality"])
	_, hasChunks := body["chunks"]
	assert.False(t, hasChunks)
	assert.Equal(t, filepath.Join(h.dir, "abc", "car.png"), h.ing.path)
}

func TestIngestFile_Errors(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/ingest/file", strings.NewReader(""))
	w := h.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.ing.err = domain.AtStage("load", &domain.UnsupportedFormatError{Ext: ".exe"})
	w = h.do(uploadRequest(t, "tool.exe", "MZ", nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	body := decode(t, w)
	assert.Equal(t, "load", body["stage"])
	assert.Contains(t, body["error"], ".exe")

	h.ing.err = domain.AtStage("embed", &domain.ModelLoadError{Model: "embeddings", Attempts: 3, Err: errors.New("x")})
	w = h.do(uploadRequest(t, "a.txt", "x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "embed", decode(t, w)["stage"])

	h.ing.path = ""
	w = h.do(uploadRequest(t, "a.txt", "x", map[string]string{"session_id": "../escape"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.ing.path)
}

func TestQuery(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/query/", strings.NewReader(`{"question":"q?","session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"answer": "42"}, decode(t, w))
	assert.Equal(t, "q?", h.ans.question)
	assert.Equal(t, domain.SessionID("s1"), h.ans.session)
}

func TestQuery_Validation(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []string{`{}`, `{"question":"q"}`, `{"session_id":"s"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/query/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, h.do(req).Code, body)
	}
}

func TestQuery_UpstreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.ans.err = domain.AtStage("synthesis", domain.Upstream("completion", errors.New("503")))
	req := httptest.NewRequest(http.MethodPost, "/query/", strings.NewReader(`{"question":"q","session_id":"s"}`))
	req.Header.Set("Content-Type", "application/json")
	w := h.do(req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "synthesis", decode(t, w)["stage"])
}

func TestClearCache(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodDelete, "/cache", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["entries"])
	assert.Zero(t, h.cache.Len())
}

func TestCORS(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w := h.do(req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
