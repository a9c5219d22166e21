package entity

import (
	"encoding/json"
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RecommendationJob 导师推荐后台任务
type RecommendationJob struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Role         Role            `json:"role"`
	ProfileID    string          `json:"profile_id,omitempty"`
	Query        string          `json:"query"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"` // 0-100
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	DurationMs   int             `json:"duration_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewRecommendationJob 创建待处理任务
func NewRecommendationJob(r Requester, query string) *RecommendationJob {
	now := time.Now()
	return &RecommendationJob{
		UserID:    r.UserID,
		Role:      r.Role,
		ProfileID: r.ProfileID,
		Query:     query,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start 开始执行任务
func (j *RecommendationJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete 完成任务
func (j *RecommendationJob) Complete(result json.RawMessage) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Result = result
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *RecommendationJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Retry 重新排队
func (j *RecommendationJob) Retry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now()
}

// UpdateProgress 更新任务进度
func (j *RecommendationJob) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}

// OwnedBy 任务是否属于该用户
func (j *RecommendationJob) OwnedBy(userID string) bool {
	return userID != "" && j.UserID == userID
}
