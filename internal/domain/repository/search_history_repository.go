package repository

import (
	"context"

	"scholar-match-api/internal/domain/entity"
)

// SearchHistoryRepository 搜索记录仓储接口
type SearchHistoryRepository interface {
	Create(ctx context.Context, h *entity.SearchHistory) error
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.SearchHistory], error)
}
