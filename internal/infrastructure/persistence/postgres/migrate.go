package postgres

import (
	"context"
	"fmt"
)

// AutoMigrate 创建 pgvector 扩展并同步表结构
func AutoMigrate(ctx context.Context, client *Client) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	db := client.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if err := db.AutoMigrate(
		&AcademicianModel{},
		&PostgraduateModel{},
		&UndergraduateModel{},
		&RecommendationJobModel{},
		&SearchHistoryModel{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := db.Exec(activeJobIndexSQL).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create active job index: %w", err)
	}
	return nil
}

// activeJobIndexSQL 每个用户最多一个 pending/running 推荐任务
const activeJobIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS uniq_recommendation_jobs_active_user
ON recommendation_jobs (user_id) WHERE status IN ('pending', 'running')`
