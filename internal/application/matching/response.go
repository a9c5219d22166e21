package matching

import (
	"bytes"
	"encoding/json"

	"scholar-match-api/internal/domain/entity"
)

// Match 响应中的单个匹配项，候选对象的字段名随搜索类型变化
type Match struct {
	Key     string
	Profile *entity.Profile
	Score   MatchScore
	Insight string
}

// MarshalJSON 固定字段顺序输出，保证相同输入得到相同字节
func (m Match) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, m.Key, m.Profile, true); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "score", m.Score.Display(), false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "score_type", string(m.Score.Kind()), false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "ai_insights", m.Insight, false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "result_type", string(m.Profile.Kind), false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any, first bool) error {
	if !first {
		buf.WriteByte(',')
	}
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Response 搜索接口的响应体
type Response struct {
	Query       string  `json:"query"`
	SearchType  string  `json:"searchType"`
	Matches     []Match `json:"matches"`
	Total       int     `json:"total"`
	ProfileUsed bool    `json:"profile_used"`
	CurrentPage int     `json:"current_page"`
	PerPage     int     `json:"per_page"`
	HasMore     bool    `json:"has_more"`
}

// BuildMatches 组装当前页匹配项，insights 与 items 等长
func BuildMatches(t entity.SearchType, items []Ranked, insights []string) []Match {
	out := make([]Match, 0, len(items))
	for i, it := range items {
		m := Match{Key: t.ResultKey(), Profile: it.Profile, Score: it.Score}
		if i < len(insights) {
			m.Insight = insights[i]
		}
		out = append(out, m)
	}
	return out
}
