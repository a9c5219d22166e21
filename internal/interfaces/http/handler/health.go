// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// VectorIndexChecker 外部向量索引健康检查
type VectorIndexChecker interface {
	HealthChecker
	Name() string
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pg      HealthChecker
	redis   HealthChecker
	vector  VectorIndexChecker
	version string
}

// NewHealthHandler 创建健康检查处理器，vector 可以为 nil
func NewHealthHandler(pg, redisClient HealthChecker, vector VectorIndexChecker, version string) *HealthHandler {
	return &HealthHandler{
		pg:      pg,
		redis:   redisClient,
		vector:  vector,
		version: version,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Ready 就绪检查。Postgres 与 Redis 必需，向量索引不可用只标记 degraded，匹配会退化为进程内排序。
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{}
	ready := true

	if !probe(ctx, checks, "postgres", h.pg, true) {
		ready = false
	}
	if !probe(ctx, checks, "redis", h.redis, true) {
		ready = false
	}
	if h.vector != nil {
		probe(ctx, checks, h.vector.Name(), h.vector, false)
	} else {
		checks["vector_index"] = &readinessCheck{Status: "disabled"}
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// probe 执行单项检查，返回是否满足就绪要求
func probe(ctx context.Context, checks map[string]*readinessCheck, name string, checker HealthChecker, required bool) bool {
	if checker == nil {
		checks[name] = &readinessCheck{Status: "missing", Error: name + " client not configured"}
		return !required
	}
	start := time.Now()
	err := checker.HealthCheck(ctx)
	check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	checks[name] = check
	if err == nil {
		return true
	}
	check.Error = err.Error()
	if required {
		check.Status = "error"
		return false
	}
	check.Status = "degraded"
	return true
}

// Live 存活检查接口
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
