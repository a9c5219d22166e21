package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// FlexibleInt 兼容旧客户端以字符串或数字传递的整数
type FlexibleInt struct {
	Value int
	Set   bool
}

// UnmarshalJSON 接受 3、"3" 与 null
func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", s)
	}
	f.Value, f.Set = v, true
	return nil
}

// SearchRequest 匹配搜索请求
type SearchRequest struct {
	Query       string      `json:"query"`
	SearchType  string      `json:"searchType"`
	Page        FlexibleInt `json:"page"`
	StudentType string      `json:"studentType"`
}

// PageOrDefault 未传 page 时为 1
func (r *SearchRequest) PageOrDefault() int {
	if !r.Page.Set {
		return 1
	}
	return r.Page.Value
}

// InsightRequest 单个 profile 解读请求
type InsightRequest struct {
	ProfileID   string `json:"profile_id"`
	ProfileType string `json:"profile_type"`
	Query       string `json:"query"`
}

// InsightResponse 解读响应
type InsightResponse struct {
	Insight string `json:"insight"`
}

// MatchingError 匹配接口的错误体
type MatchingError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// MatchingFail 以匹配接口的错误格式响应
func MatchingFail(c *gin.Context, status int, message, field string) {
	c.AbortWithStatusJSON(status, MatchingError{Error: message, Field: field})
}
