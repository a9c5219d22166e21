// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/utils"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// Enabled 未启用时所有请求按 guest 处理
	Enabled bool
}

// Auth 解析访问令牌，将请求者写入 context。角色只在这里解析一次。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			setRequester(c, entity.Anonymous())
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "invalid token"
			if err == utils.ErrExpiredToken {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		setRequester(c, entity.Requester{
			UserID:    claims.UserID,
			Role:      entity.ParseRole(claims.Role),
			ProfileID: claims.ProfileID,
			Admin:     claims.Admin,
		})
		c.Next()
	}
}

func setRequester(c *gin.Context, r entity.Requester) {
	c.Set("user_id", r.UserID)
	c.Set("role", string(r.Role))

	ctx := entity.WithRequester(c.Request.Context(), r)
	if r.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, r.UserID)
	}
	ctx = logger.WithContext(ctx, logger.RoleKey, string(r.Role))
	c.Request = c.Request.WithContext(ctx)
}

// RequesterFrom 读取当前请求者
func RequesterFrom(c *gin.Context) entity.Requester {
	r, _ := entity.RequesterFromContext(c.Request.Context())
	return r
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     401,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
