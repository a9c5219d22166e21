package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/domain/entity"
)

// RequireRole 请求者角色必须是其中之一
func RequireRole(roles ...entity.Role) gin.HandlerFunc {
	roleSet := make(map[entity.Role]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		if !roleSet[RequesterFrom(c).Role] {
			abortForbidden(c, "role not allowed")
			return
		}
		c.Next()
	}
}

// RequireAdmin 管理端接口
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !RequesterFrom(c).Admin {
			abortForbidden(c, "permission denied")
			return
		}
		c.Next()
	}
}

// abortForbidden 终止请求并返回 403
func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     403,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
