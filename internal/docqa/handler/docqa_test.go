package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
	"github.com/kart-io/docqa/pkg/utils/validator"
)

type fakeService struct {
	reloadN   int
	reloadErr error
	askErr    error
	saved     map[string]string
	cleared   []string
}

func (f *fakeService) Reload(context.Context) (int, error) { return f.reloadN, f.reloadErr }

func (f *fakeService) ReloadMessage(n int) string { return fmt.Sprintf("loaded %d", n) }

func (f *fakeService) Ask(_ context.Context, userID, question string) (*biz.AskResult, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &biz.AskResult{Success: true, Answer: userID + ":" + question, Sources: []string{"a.txt"}, FoundDocs: 1}, nil
}

func (f *fakeService) Stats(context.Context) *biz.Stats {
	return &biz.Stats{TotalChunks: 3, TotalSources: 1, Sources: []string{"a.txt"}}
}

func (f *fakeService) ClearHistory(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeService) SaveDocument(name string, r io.Reader, _ int64) (string, error) {
	if !strings.HasSuffix(name, ".txt") {
		return "", errors.ErrUnsupportedFormat
	}
	data, _ := io.ReadAll(r)
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[name] = string(data)
	return name, nil
}

func (f *fakeService) Ready() bool { return f.reloadN > 0 }

func newEngine(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDocQAHandler(svc, 1<<20)
	r := gin.New()
	r.GET("/healthz", h.Health)
	r.POST("/reload", h.Reload)
	r.POST("/ask", h.Ask)
	r.GET("/stats", h.Stats)
	r.DELETE("/history/:user_id", h.ClearHistory)
	r.POST("/documents", h.Upload)
	return r
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestAsk(t *testing.T) {
	r := newEngine(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"user_id":"42","question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w, env := do(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, env.Code)
	var res biz.AskResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "42:hi", res.Answer)
	assert.Equal(t, []string{"a.txt"}, res.Sources)
}

func TestAsk_BadRequest(t *testing.T) {
	bodies := map[string]string{
		"missing user":   `{"question":"hi"}`,
		"blank question": `{"user_id":"1","question":"   "}`,
		"spaced user id": `{"user_id":"a b","question":"hi"}`,
		"malformed json": `{"user_id":`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			r := newEngine(svc)

			req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w, env := do(t, r, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, errors.ErrInvalidRequest.Code, env.Code)
		})
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"timeout", errors.ErrProviderTimeout, http.StatusGatewayTimeout},
		{"generation", errors.ErrGeneration, http.StatusBadGateway},
		{"index", errors.ErrIndexRead, http.StatusInternalServerError},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&fakeService{askErr: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"user_id":"1","question":"q"}`))
			req.Header.Set("Content-Type", "application/json")
			w, env := do(t, r, req)
			assert.Equal(t, tt.status, w.Code)
			assert.NotZero(t, env.Code)
		})
	}
}

func TestReload(t *testing.T) {
	w, env := do(t, newEngine(&fakeService{reloadN: 7}), httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var res ReloadResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, ReloadResponse{Chunks: 7, Message: "loaded 7"}, res)

	w, env = do(t, newEngine(&fakeService{reloadErr: errors.ErrNoDocuments}), httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrNoDocuments.Code, env.Code)
}

func TestStatsAndHistory(t *testing.T) {
	svc := &fakeService{}
	r := newEngine(svc)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var stats biz.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.TotalChunks)

	w, _ = do(t, r, httptest.NewRequest(http.MethodDelete, "/history/99", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"99"}, svc.cleared)
}

func TestClearHistory_InvalidUserID(t *testing.T) {
	paths := map[string]string{
		"spaced user id":   "/history/a%20b",
		"too long user id": "/history/" + strings.Repeat("x", validator.MaxUserIDLen+1),
		"tab in user id":   "/history/a%09b",
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			w, env := do(t, newEngine(svc), httptest.NewRequest(http.MethodDelete, path, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, errors.ErrInvalidRequest.Code, env.Code)
			assert.Empty(t, svc.cleared)
		})
	}
}

func multipartRequest(t *testing.T, url, name, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	svc := &fakeService{reloadN: 2}
	r := newEngine(svc)

	w, env := do(t, r, multipartRequest(t, "/documents?reload=true", "notes.txt", "hello"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", svc.saved["notes.txt"])
	var res UploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "notes.txt", res.File)
	require.NotNil(t, res.Reload)
	assert.Equal(t, 2, res.Reload.Chunks)

	w, env = do(t, r, multipartRequest(t, "/documents", "image.png", "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrUnsupportedFormat.Code, env.Code)

	w, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/documents", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	w, _ := do(t, newEngine(&fakeService{reloadN: 1}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}
