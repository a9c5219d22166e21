package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/domain/repository"
	apperrors "scholar-match-api/pkg/errors"
)

// Envelope 管理端与推荐任务接口的统一响应。匹配接口不使用信封。
type Envelope[T any] struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    T                   `json:"data,omitempty"`
	Meta    *PageMeta           `json:"meta,omitempty"`
	Detail  string              `json:"detail,omitempty"`
	TraceID string              `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, Envelope[T]{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// SuccessWithPage 200，分页信息取自仓储的分页结果
func SuccessWithPage[T, E any](c *gin.Context, data T, page *repository.PagedResult[E]) {
	c.JSON(http.StatusOK, Envelope[T]{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
		Meta: &PageMeta{
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
		TraceID: c.GetString("trace_id"),
	})
}

// Accepted 202，用于异步任务入队
func Accepted[T any](c *gin.Context, data T) {
	c.JSON(http.StatusAccepted, Envelope[T]{
		Code:    apperrors.CodeSuccess,
		Message: "accepted",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Fail 按错误码对应的 HTTP 状态返回错误信封
func Fail(c *gin.Context, err *apperrors.AppError) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Envelope[any]{
		Code:    err.Code,
		Message: err.Message,
		Detail:  err.Detail,
		TraceID: c.GetString("trace_id"),
	})
}
