package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/application/recommendation"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMatching struct {
	payload   []byte
	err       error
	insight   string
	lastReq   matching.SearchRequest
	requester entity.Requester
}

func (f *fakeMatching) Search(_ context.Context, r entity.Requester, req matching.SearchRequest) ([]byte, error) {
	f.requester, f.lastReq = r, req
	return f.payload, f.err
}

func (f *fakeMatching) Insight(_ context.Context, r entity.Requester, _ matching.InsightQuery) (string, error) {
	f.requester = r
	return f.insight, f.err
}

func withRequester(r entity.Requester) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(entity.WithRequester(c.Request.Context(), r))
		c.Next()
	}
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

var academician = entity.Requester{UserID: "u-a", Role: entity.RoleAcademician}

func TestMatchingHandler_Search(t *testing.T) {
	t.Run("returns payload verbatim", func(t *testing.T) {
		svc := &fakeMatching{payload: []byte(`{"query":"nlp","matches":[]}`)}
		engine := gin.New()
		engine.POST("/search", withRequester(academician), NewMatchingHandler(svc).Search)

		w := doJSON(t, engine, http.MethodPost, "/search", `{"query":"nlp","searchType":"students","page":"2","studentType":"postgraduate"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"query":"nlp","matches":[]}`, w.Body.String())
		assert.Equal(t, 2, svc.lastReq.Page)
		assert.Equal(t, "postgraduate", svc.lastReq.StudentType)
		assert.Equal(t, "u-a", svc.requester.UserID)
	})

	t.Run("page defaults to one", func(t *testing.T) {
		svc := &fakeMatching{payload: []byte(`{}`)}
		engine := gin.New()
		engine.POST("/search", NewMatchingHandler(svc).Search)

		w := doJSON(t, engine, http.MethodPost, "/search", map[string]any{"query": "nlp", "searchType": "supervisor"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, svc.lastReq.Page)
	})

	t.Run("explicit page zero is passed through", func(t *testing.T) {
		svc := &fakeMatching{payload: []byte(`{}`)}
		engine := gin.New()
		engine.POST("/search", NewMatchingHandler(svc).Search)

		doJSON(t, engine, http.MethodPost, "/search", `{"query":"nlp","searchType":"supervisor","page":0}`)
		assert.Equal(t, 0, svc.lastReq.Page)
	})

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "role not allowed",
			err:    &matching.RequestError{Kind: matching.ErrRoleNotAllowed, Message: "You must be an academician to search for students."},
			status: http.StatusForbidden,
			body:   `{"error":"You must be an academician to search for students."}`,
		},
		{
			name:   "validation",
			err:    &matching.RequestError{Kind: matching.ErrInvalidQuery, Field: "query", Message: "too short"},
			status: http.StatusBadRequest,
			body:   `{"error":"too short","field":"query"}`,
		},
		{
			name:   "internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"error":"An error occurred while searching. Please try again later."}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := gin.New()
			engine.POST("/search", NewMatchingHandler(&fakeMatching{err: tc.err}).Search)

			w := doJSON(t, engine, http.MethodPost, "/search", map[string]any{"query": "nlp", "searchType": "students"})
			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		engine := gin.New()
		engine.POST("/search", NewMatchingHandler(&fakeMatching{}).Search)
		w := doJSON(t, engine, http.MethodPost, "/search", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMatchingHandler_Insight(t *testing.T) {
	engine := gin.New()
	engine.POST("/insight", NewMatchingHandler(&fakeMatching{insight: "Strong overlap."}).Insight)
	w := doJSON(t, engine, http.MethodPost, "/insight", map[string]any{"profile_id": "1", "profile_type": "academician"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"insight":"Strong overlap."}`, w.Body.String())

	engine = gin.New()
	engine.POST("/insight", NewMatchingHandler(&fakeMatching{err: &matching.RequestError{Kind: matching.ErrProfileNotFound, Message: "Profile not found."}}).Insight)
	w = doJSON(t, engine, http.MethodPost, "/insight", map[string]any{"profile_id": "1", "profile_type": "academician"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Profile not found."}`, w.Body.String())
}

type fakeRecommendations struct {
	job *entity.RecommendationJob
	err error
}

func (f *fakeRecommendations) Enqueue(context.Context, entity.Requester, string) (*entity.RecommendationJob, bool, error) {
	return f.job, true, f.err
}

func (f *fakeRecommendations) Status(context.Context, entity.Requester, string) (*entity.RecommendationJob, error) {
	return f.job, f.err
}

func (f *fakeRecommendations) List(_ context.Context, _ entity.Requester, p repository.Pagination) (*repository.PagedResult[*entity.RecommendationJob], error) {
	return repository.NewPagedResult([]*entity.RecommendationJob{f.job}, 1, p), f.err
}

func TestRecommendationHandler(t *testing.T) {
	job := &entity.RecommendationJob{ID: "j1", Status: entity.JobStatusPending}

	t.Run("create accepted", func(t *testing.T) {
		engine := gin.New()
		engine.POST("/recs", NewRecommendationHandler(&fakeRecommendations{job: job}).Create)
		w := doJSON(t, engine, http.MethodPost, "/recs", nil)
		require.Equal(t, http.StatusAccepted, w.Code)

		var body struct {
			Data struct {
				JobID  string `json:"job_id"`
				Status string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "j1", body.Data.JobID)
		assert.Equal(t, "pending", body.Data.Status)
	})

	t.Run("create forbidden for academicians", func(t *testing.T) {
		engine := gin.New()
		engine.POST("/recs", NewRecommendationHandler(&fakeRecommendations{err: recommendation.ErrNotStudent}).Create)
		w := doJSON(t, engine, http.MethodPost, "/recs", map[string]any{"query": "x"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("get not found", func(t *testing.T) {
		engine := gin.New()
		engine.GET("/recs/:jid", NewRecommendationHandler(&fakeRecommendations{err: recommendation.ErrJobNotFound}).Get)
		w := doJSON(t, engine, http.MethodGet, "/recs/j1", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		engine := gin.New()
		engine.GET("/recs", NewRecommendationHandler(&fakeRecommendations{job: job}).List)
		w := doJSON(t, engine, http.MethodGet, "/recs?page=1&page_size=5", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":1`)
	})
}

type fakeAdmin struct{}

func (fakeAdmin) Diagnostics(context.Context) *matching.Diagnostics {
	return &matching.Diagnostics{VectorProvider: "milvus", Coverage: []repository.EmbeddingCoverage{}}
}

func (fakeAdmin) ClearCache(context.Context) (*matching.ClearResult, error) {
	return &matching.ClearResult{Cleared: 3, BestEffort: true, Pattern: "ai_match:v1:*"}, nil
}

type fakeRefresher struct {
	kind entity.ProfileKind
	ids  []string
}

func (f *fakeRefresher) EnqueueRefresh(_ context.Context, kind entity.ProfileKind, ids []string) (int, error) {
	f.kind, f.ids = kind, ids
	return len(ids), nil
}

func TestAdminHandler(t *testing.T) {
	refresher := &fakeRefresher{}
	h := NewAdminHandler(fakeAdmin{}, refresher)
	engine := gin.New()
	engine.GET("/diag", h.Diagnostics)
	engine.POST("/clear", h.ClearCache)
	engine.POST("/refresh", h.RefreshEmbeddings)

	w := doJSON(t, engine, http.MethodGet, "/diag", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"vector_provider":"milvus"`)

	w = doJSON(t, engine, http.MethodPost, "/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"best_effort":true`)

	w = doJSON(t, engine, http.MethodPost, "/refresh", map[string]any{"profile_type": "robot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/refresh", map[string]any{"profile_type": "Postgraduate", "profile_ids": []string{"p1", "p2"}})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, entity.ProfilePostgraduate, refresher.kind)
	assert.Contains(t, w.Body.String(), `"enqueued":2`)
}

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }
func (f fakeChecker) Name() string                      { return f.name }

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("vector index failure only degrades", func(t *testing.T) {
		h := NewHealthHandler(fakeChecker{}, fakeChecker{}, fakeChecker{name: "qdrant", err: errors.New("down")}, "test")
		engine := gin.New()
		engine.GET("/ready", h.Ready)

		w := doJSON(t, engine, http.MethodGet, "/ready", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"qdrant":{"status":"degraded"`)
	})

	t.Run("redis failure is not ready", func(t *testing.T) {
		h := NewHealthHandler(fakeChecker{}, fakeChecker{err: errors.New("refused")}, nil, "test")
		engine := gin.New()
		engine.GET("/ready", h.Ready)

		w := doJSON(t, engine, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"vector_index":{"status":"disabled"}`)
	})
}
