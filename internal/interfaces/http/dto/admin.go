package dto

// RefreshEmbeddingsRequest embedding 刷新请求，profile_ids 为空时刷新全部过期 profile
type RefreshEmbeddingsRequest struct {
	ProfileType string   `json:"profile_type" binding:"required"`
	ProfileIDs  []string `json:"profile_ids"`
}

// RefreshEmbeddingsResponse 已投递的刷新任务数
type RefreshEmbeddingsResponse struct {
	ProfileType string `json:"profile_type"`
	Enqueued    int    `json:"enqueued"`
}
