package router

import (
	"github.com/gin-gonic/gin"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// AI 匹配
	matching := v1.Group("/ai-matching")
	if h.Matching != nil {
		matching.POST("/search", h.Matching.Search)
		matching.POST("/insight", h.Matching.Insight)
	}

	// 导师推荐任务
	if h.Recommendation != nil {
		recs := matching.Group("/recommendations")
		{
			recs.POST("", middleware.RequireRole(entity.RolePostgraduate, entity.RoleUndergraduate), h.Recommendation.Create)
			recs.GET("", h.Recommendation.List)
			recs.GET("/:jid", h.Recommendation.Get)
		}
	}

	// 管理端
	if h.Admin != nil {
		admin := v1.Group("/admin/ai-matching", middleware.RequireAdmin())
		{
			admin.GET("/diagnostics", h.Admin.Diagnostics)
			admin.POST("/cache/clear", h.Admin.ClearCache)
			admin.POST("/embeddings/refresh", h.Admin.RefreshEmbeddings)
		}
	}
}
