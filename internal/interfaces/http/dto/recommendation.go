package dto

import (
	"encoding/json"
	"time"

	"scholar-match-api/internal/domain/entity"
)

// CreateRecommendationRequest 导师推荐请求，query 可为空
type CreateRecommendationRequest struct {
	Query string `json:"query"`
}

// RecommendationJobResponse 推荐任务响应
type RecommendationJobResponse struct {
	ID          string          `json:"job_id"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Query       string          `json:"query,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	DurationMs  int             `json:"duration_ms,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ToRecommendationJobResponse 将领域实体转换为响应 DTO
func ToRecommendationJobResponse(j *entity.RecommendationJob) *RecommendationJobResponse {
	if j == nil {
		return nil
	}
	return &RecommendationJobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		Query:       j.Query,
		Result:      j.Result,
		Error:       j.ErrorMessage,
		RetryCount:  j.RetryCount,
		DurationMs:  j.DurationMs,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// ToRecommendationJobList 列表转换
func ToRecommendationJobList(jobs []*entity.RecommendationJob) []*RecommendationJobResponse {
	out := make([]*RecommendationJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ToRecommendationJobResponse(j))
	}
	return out
}
