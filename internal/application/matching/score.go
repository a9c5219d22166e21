package matching

import (
	"errors"
	"fmt"
	"math"
)

// ScoreKind 匹配分数来源
type ScoreKind string

const (
	ScoreEmbedding ScoreKind = "embedding"
	ScoreKeyword   ScoreKind = "keyword"
)

// ErrIncomparableScores 两种算法的分数不在同一量纲
var ErrIncomparableScores = errors.New("match scores of different kinds are not comparable")

// MatchScore 余弦相似度或关键词计数，二者不可直接比较
type MatchScore struct {
	kind      ScoreKind
	embedding float64
	keyword   uint32
}

// EmbeddingScore 余弦相似度分数
func EmbeddingScore(sim float64) MatchScore {
	return MatchScore{kind: ScoreEmbedding, embedding: sim}
}

// KeywordScore 关键词计数分数
func KeywordScore(n uint32) MatchScore {
	return MatchScore{kind: ScoreKeyword, keyword: n}
}

// Kind 返回分数类型
func (s MatchScore) Kind() ScoreKind { return s.kind }

// Embedding 返回余弦相似度
func (s MatchScore) Embedding() (float64, bool) {
	return s.embedding, s.kind == ScoreEmbedding
}

// Keyword 返回关键词计数
func (s MatchScore) Keyword() (uint32, bool) {
	return s.keyword, s.kind == ScoreKeyword
}

// Compare 同类分数比较，返回 -1/0/1
func (s MatchScore) Compare(o MatchScore) (int, error) {
	if s.kind == "" || s.kind != o.kind {
		return 0, fmt.Errorf("%w: %q vs %q", ErrIncomparableScores, s.kind, o.kind)
	}
	var a, b float64
	if s.kind == ScoreEmbedding {
		a, b = s.embedding, o.embedding
	} else {
		a, b = float64(s.keyword), float64(o.keyword)
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// Display 仅用于展示：相似度保留 4 位小数，关键词分数原样返回
func (s MatchScore) Display() float64 {
	switch s.kind {
	case ScoreEmbedding:
		return math.Round(s.embedding*10000) / 10000
	case ScoreKeyword:
		return float64(s.keyword)
	default:
		return 0
	}
}

// String 实现 fmt.Stringer
func (s MatchScore) String() string {
	switch s.kind {
	case ScoreEmbedding:
		return fmt.Sprintf("embedding(%.4f)", s.embedding)
	case ScoreKeyword:
		return fmt.Sprintf("keyword(%d)", s.keyword)
	default:
		return "none"
	}
}
