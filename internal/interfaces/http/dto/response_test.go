package dto

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/domain/repository"
	apperrors "scholar-match-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("trace_id", "trace-1")
	handler(c)
	return w
}

func TestFailUsesErrorCodeStatus(t *testing.T) {
	cases := []struct {
		err    *apperrors.AppError
		status int
		code   string
	}{
		{apperrors.ErrJobNotFound, http.StatusNotFound, "3002"},
		{apperrors.New(apperrors.CodeRoleNotAllowed, "students only"), http.StatusForbidden, "2005"},
		{apperrors.New(apperrors.CodeQueueError, "failed to enqueue job"), http.StatusServiceUnavailable, "5004"},
		{apperrors.ErrInvalidParam.WithDetail("unexpected EOF"), http.StatusBadRequest, "1001"},
		{&apperrors.AppError{Code: apperrors.CodeUnknown, Message: "x"}, http.StatusInternalServerError, "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := record(func(c *gin.Context) { Fail(c, tc.err) })
			assert.Equal(t, tc.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, tc.err.Message, body["message"])
			assert.Equal(t, "trace-1", body["trace_id"])
			assert.NotContains(t, body, "data")
			if tc.err.Detail != "" {
				assert.Equal(t, tc.err.Detail, body["detail"])
			}
		})
	}
}

func TestSuccessWithPageCopiesPagedResult(t *testing.T) {
	page := repository.NewPagedResult([]string{"a", "b"}, 21, repository.NewPagination(2, 10))
	w := record(func(c *gin.Context) { SuccessWithPage(c, page.Items, page) })
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"code": "0",
		"message": "success",
		"data": ["a", "b"],
		"meta": {"page": 2, "page_size": 10, "total": 21, "total_pages": 3},
		"trace_id": "trace-1"
	}`, w.Body.String())
}

func TestAcceptedEnvelope(t *testing.T) {
	w := record(func(c *gin.Context) { Accepted(c, map[string]int{"enqueued": 2}) })
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"code":"0","message":"accepted","data":{"enqueued":2},"trace_id":"trace-1"}`, w.Body.String())
}
