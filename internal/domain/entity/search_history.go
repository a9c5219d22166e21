package entity

import "time"

// SearchHistory 搜索记录，只记录实际计算过的搜索
type SearchHistory struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Query       string     `json:"query"`
	SearchType  SearchType `json:"search_type"`
	Total       int        `json:"total"`
	ProfileUsed bool       `json:"profile_used"`
	ScorePath   string     `json:"score_path"`
	CreatedAt   time.Time  `json:"created_at"`
}
