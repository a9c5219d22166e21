package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/application/recommendation"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/interfaces/http/dto"
	"scholar-match-api/internal/interfaces/http/middleware"
	apperrors "scholar-match-api/pkg/errors"
	"scholar-match-api/pkg/logger"
)

// RecommendationService 导师推荐任务服务
type RecommendationService interface {
	Enqueue(ctx context.Context, requester entity.Requester, query string) (*entity.RecommendationJob, bool, error)
	Status(ctx context.Context, requester entity.Requester, jobID string) (*entity.RecommendationJob, error)
	List(ctx context.Context, requester entity.Requester, p repository.Pagination) (*repository.PagedResult[*entity.RecommendationJob], error)
}

// RecommendationHandler 导师推荐任务处理器
type RecommendationHandler struct {
	svc RecommendationService
}

// NewRecommendationHandler 创建推荐任务处理器
func NewRecommendationHandler(svc RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{svc: svc}
}

// Create 提交推荐任务。已有进行中的任务时返回该任务。
// @Router /v1/ai-matching/recommendations [post]
func (h *RecommendationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRecommendationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.Fail(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
			return
		}
	}

	job, _, err := h.svc.Enqueue(ctx, middleware.RequesterFrom(c), req.Query)
	if err != nil {
		switch {
		case errors.Is(err, recommendation.ErrNotStudent):
			dto.Fail(c, apperrors.New(apperrors.CodeRoleNotAllowed, err.Error()))
		case errors.Is(err, recommendation.ErrQueryTooLong):
			dto.Fail(c, apperrors.New(apperrors.CodeInvalidQuery, err.Error()))
		case errors.Is(err, recommendation.ErrEnqueueFailed):
			dto.Fail(c, apperrors.New(apperrors.CodeQueueError, "failed to enqueue job"))
		default:
			logger.Error(ctx, "failed to create recommendation job", err)
			dto.Fail(c, apperrors.New(apperrors.CodeDatabaseError, "failed to create job"))
		}
		return
	}
	dto.Accepted(c, dto.ToRecommendationJobResponse(job))
}

// Get 查询任务状态，仅任务所有者可见
// @Router /v1/ai-matching/recommendations/{jid} [get]
func (h *RecommendationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := h.svc.Status(ctx, middleware.RequesterFrom(c), dto.BindJobID(c))
	if err != nil {
		if errors.Is(err, recommendation.ErrJobNotFound) {
			dto.Fail(c, apperrors.ErrJobNotFound)
			return
		}
		logger.Error(ctx, "failed to get recommendation job", err)
		dto.Fail(c, apperrors.New(apperrors.CodeDatabaseError, "failed to get job"))
		return
	}
	dto.Success(c, dto.ToRecommendationJobResponse(job))
}

// List 列出当前用户的推荐任务
// @Router /v1/ai-matching/recommendations [get]
func (h *RecommendationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	result, err := h.svc.List(ctx, middleware.RequesterFrom(c), dto.BindPage(c))
	if err != nil {
		logger.Error(ctx, "failed to list recommendation jobs", err)
		dto.Fail(c, apperrors.New(apperrors.CodeDatabaseError, "failed to list jobs"))
		return
	}
	dto.SuccessWithPage(c, dto.ToRecommendationJobList(result.Items), result)
}
