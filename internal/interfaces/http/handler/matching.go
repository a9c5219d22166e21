package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/interfaces/http/dto"
	"scholar-match-api/internal/interfaces/http/middleware"
	"scholar-match-api/pkg/logger"
)

// MatchingService 匹配服务
type MatchingService interface {
	Search(ctx context.Context, requester entity.Requester, req matching.SearchRequest) ([]byte, error)
	Insight(ctx context.Context, requester entity.Requester, q matching.InsightQuery) (string, error)
}

// MatchingHandler AI 匹配接口。响应保持旧客户端使用的裸 JSON 契约，不使用统一响应包装。
type MatchingHandler struct {
	svc MatchingService
}

// NewMatchingHandler 创建匹配处理器
func NewMatchingHandler(svc MatchingService) *MatchingHandler {
	return &MatchingHandler{svc: svc}
}

// Search 匹配搜索
// @Router /v1/ai-matching/search [post]
func (h *MatchingHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.MatchingFail(c, http.StatusBadRequest, "Invalid request body.", "")
		return
	}

	payload, err := h.svc.Search(c.Request.Context(), middleware.RequesterFrom(c), matching.SearchRequest{
		Query:       req.Query,
		SearchType:  req.SearchType,
		Page:        req.PageOrDefault(),
		StudentType: req.StudentType,
	})
	if err != nil {
		writeMatchingError(c, err, "An error occurred while searching. Please try again later.")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// Insight 单个 profile 的匹配解读
// @Router /v1/ai-matching/insight [post]
func (h *MatchingHandler) Insight(c *gin.Context) {
	var req dto.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.MatchingFail(c, http.StatusBadRequest, "Invalid request body.", "")
		return
	}

	text, err := h.svc.Insight(c.Request.Context(), middleware.RequesterFrom(c), matching.InsightQuery{
		ProfileID:   req.ProfileID,
		ProfileType: req.ProfileType,
		Query:       req.Query,
	})
	if err != nil {
		writeMatchingError(c, err, "An error occurred while generating insights.")
		return
	}
	c.JSON(http.StatusOK, dto.InsightResponse{Insight: text})
}

// writeMatchingError 请求错误按类别映射状态码，其余错误记录后返回 500
func writeMatchingError(c *gin.Context, err error, fallback string) {
	var reqErr *matching.RequestError
	if errors.As(err, &reqErr) {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, matching.ErrRoleNotAllowed):
			status = http.StatusForbidden
		case errors.Is(err, matching.ErrProfileNotFound):
			status = http.StatusNotFound
		}
		dto.MatchingFail(c, status, reqErr.Message, reqErr.Field)
		return
	}
	logger.Error(c.Request.Context(), "matching request failed", err, "path", c.FullPath())
	dto.MatchingFail(c, http.StatusInternalServerError, fallback, "")
}
