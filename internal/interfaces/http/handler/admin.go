package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/interfaces/http/dto"
	apperrors "scholar-match-api/pkg/errors"
	"scholar-match-api/pkg/logger"
)

// MatchingAdmin 匹配流程的管理操作
type MatchingAdmin interface {
	Diagnostics(ctx context.Context) *matching.Diagnostics
	ClearCache(ctx context.Context) (*matching.ClearResult, error)
}

// EmbeddingRefresher embedding 刷新任务投递
type EmbeddingRefresher interface {
	EnqueueRefresh(ctx context.Context, kind entity.ProfileKind, ids []string) (int, error)
}

// AdminHandler 管理端处理器
type AdminHandler struct {
	matching  MatchingAdmin
	refresher EmbeddingRefresher
}

// NewAdminHandler 创建管理端处理器
func NewAdminHandler(m MatchingAdmin, refresher EmbeddingRefresher) *AdminHandler {
	return &AdminHandler{matching: m, refresher: refresher}
}

// Diagnostics 匹配流程诊断信息
// @Router /v1/admin/ai-matching/diagnostics [get]
func (h *AdminHandler) Diagnostics(c *gin.Context) {
	dto.Success(c, h.matching.Diagnostics(c.Request.Context()))
}

// ClearCache 清除匹配结果缓存
// @Router /v1/admin/ai-matching/cache/clear [post]
func (h *AdminHandler) ClearCache(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.matching.ClearCache(ctx)
	if err != nil {
		logger.Error(ctx, "failed to clear matching cache", err)
		dto.Fail(c, apperrors.New(apperrors.CodeCacheError, "failed to clear cache"))
		return
	}
	dto.Success(c, res)
}

// RefreshEmbeddings 投递 embedding 刷新任务
// @Router /v1/admin/ai-matching/embeddings/refresh [post]
func (h *AdminHandler) RefreshEmbeddings(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RefreshEmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.Fail(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	kind, ok := entity.ParseProfileKind(req.ProfileType)
	if !ok {
		dto.Fail(c, apperrors.New(apperrors.CodeInvalidParam, "profile_type must be academician, postgraduate or undergraduate"))
		return
	}
	if h.refresher == nil {
		dto.Fail(c, apperrors.New(apperrors.CodeServiceUnavailable, "embedding refresh is not configured"))
		return
	}

	n, err := h.refresher.EnqueueRefresh(ctx, kind, req.ProfileIDs)
	if err != nil {
		logger.Error(ctx, "failed to enqueue embedding refresh", err, "profile_type", string(kind))
		dto.Fail(c, apperrors.New(apperrors.CodeQueueError, "failed to enqueue embedding refresh"))
		return
	}
	dto.Accepted(c, &dto.RefreshEmbeddingsResponse{ProfileType: string(kind), Enqueued: n})
}
