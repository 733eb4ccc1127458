package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

func TestSuccess(t *testing.T) {
	r := Success(map[string]int{"chunks": 3})
	assert.True(t, r.IsSuccess())
	assert.Equal(t, http.StatusOK, r.HTTPStatus())
	assert.Equal(t, "success", r.Message)
}

func TestErr(t *testing.T) {
	r := Err(errors.ErrNoDocuments, "ru")
	assert.False(t, r.IsSuccess())
	assert.Equal(t, http.StatusNotFound, r.HTTPStatus())
	assert.Equal(t, "Документы не найдены", r.Message)

	r = Err(errors.ErrIndexWrite.WithCause(fmt.Errorf("disk full")), "en")
	assert.Equal(t, "Index write failed: disk full", r.Message)

	assert.True(t, Err(nil, "en").IsSuccess())
}

func TestHTTPStatus_CategoryFallback(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{errors.MakeCode(99, errors.CategoryRequest, 999), http.StatusBadRequest},
		{errors.MakeCode(99, errors.CategoryConflict, 999), http.StatusConflict},
		{errors.MakeCode(99, errors.CategoryTimeout, 999), http.StatusGatewayTimeout},
		{errors.MakeCode(99, errors.CategoryNetwork, 999), http.StatusBadGateway},
		{errors.MakeCode(99, errors.CategoryStorage, 999), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := &Response{Code: tt.code, Message: "x"}
		assert.Equal(t, tt.want, r.HTTPStatus(), "code %d", tt.code)
	}
}

func TestLang(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		target, header, want string
	}{
		{"/", "", "en"},
		{"/?lang=ru", "", "ru"},
		{"/", "ru-RU,ru;q=0.9", "ru"},
		{"/?lang=en", "ru-RU", "en"},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, tt.target, nil)
		if tt.header != "" {
			c.Request.Header.Set("Accept-Language", tt.header)
		}
		assert.Equal(t, tt.want, Lang(c), "%s %s", tt.target, tt.header)
	}
}

func TestFail_WritesErrnoAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(RequestIDKey, "01J0000000000000000000000")

	Fail(c, errors.ErrReloadInProgress)

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrReloadInProgress.Code, body.Code)
	assert.Equal(t, "01J0000000000000000000000", body.RequestID)
	assert.NotZero(t, body.Timestamp)
}

func TestFail_PlainErrorIsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(c, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrInternal.Code, body.Code)
}
