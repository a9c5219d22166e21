package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scholar-match-api/pkg/logger"
)

// RequestIDHeader 请求 ID 头，推荐任务与 embedding 刷新消息会带上它
const RequestIDHeader = "X-Request-ID"

const (
	requestIDKey       = "request_id"
	maxRequestIDLength = 64
)

// RequestID 确定本次请求的 ID 并写入 gin context、日志 context 与响应头。
// 客户端传入的 ID 不合法时重新生成。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.RequestIDKey, id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom 当前请求 ID，未经过 RequestID 中间件时为空
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// validRequestID 只接受不超过 64 字节的字母、数字与 -_.:
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
