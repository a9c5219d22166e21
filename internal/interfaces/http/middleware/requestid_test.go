package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveRequestID(t *testing.T, header string) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var fromGin, fromCtx string
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		fromGin = RequestIDFrom(c)
		fromCtx, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w, fromGin, fromCtx
}

func TestRequestIDKeepsValidClientID(t *testing.T) {
	w, fromGin, fromCtx := serveRequestID(t, "job-7f3a:retry.1")
	assert.Equal(t, "job-7f3a:retry.1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "job-7f3a:retry.1", fromGin)
	assert.Equal(t, "job-7f3a:retry.1", fromCtx)
}

func TestRequestIDReplacesInvalidClientID(t *testing.T) {
	for _, header := range []string{"", "has space", "line\nbreak", strings.Repeat("a", 65)} {
		w, fromGin, fromCtx := serveRequestID(t, header)
		got := w.Header().Get(RequestIDHeader)
		require.NotEmpty(t, got, "%q", header)
		assert.NotEqual(t, header, got)
		assert.Len(t, got, 36)
		assert.Equal(t, got, fromGin)
		assert.Equal(t, got, fromCtx)
	}
}
