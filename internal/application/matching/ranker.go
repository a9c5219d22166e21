package matching

import (
	"math"
	"sort"
	"strings"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

// DefaultRankLimit 分页前最多保留的排序结果
const DefaultRankLimit = 50

// Ranked 排序后的候选
type Ranked struct {
	Profile *entity.Profile
	Score   MatchScore
}

// Ranker 相似度排序器
type Ranker struct {
	limit int
}

// NewRanker 创建排序器
func NewRanker(limit int) *Ranker {
	if limit <= 0 {
		limit = DefaultRankLimit
	}
	return &Ranker{limit: limit}
}

// ByEmbedding 余弦相似度排序：过滤低于阈值的候选，稳定降序，同分保持输入顺序。
// 没有 embedding 的候选被跳过。
func (r *Ranker) ByEmbedding(query []float32, candidates []*entity.Profile, threshold float64) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	if len(query) == 0 {
		return out
	}
	for _, c := range candidates {
		if c == nil || len(c.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(query, c.Embedding)
		if sim < threshold {
			continue
		}
		out = append(out, Ranked{Profile: c, Score: EmbeddingScore(sim)})
	}
	return r.sortAndCap(out)
}

// ByHits 按外部向量索引的命中排序，candidates 需已按过滤条件加载。
// 同分保持命中顺序。
func (r *Ranker) ByHits(hits []repository.VectorHit, candidates []*entity.Profile, threshold float64) []Ranked {
	byRef := make(map[entity.ProfileRef]*entity.Profile, len(candidates))
	for _, c := range candidates {
		if c != nil {
			byRef[c.Ref()] = c
		}
	}
	out := make([]Ranked, 0, len(hits))
	seen := make(map[entity.ProfileRef]struct{}, len(hits))
	for _, h := range hits {
		p, ok := byRef[h.Ref]
		if !ok || h.Score < threshold {
			continue
		}
		if _, dup := seen[h.Ref]; dup {
			continue
		}
		seen[h.Ref] = struct{}{}
		out = append(out, Ranked{Profile: p, Score: EmbeddingScore(h.Score)})
	}
	return r.sortAndCap(out)
}

// ByKeyword 关键词回退：每个词在每条研究方向中出现 +2，在 bio 中出现 +1，
// 不区分大小写的子串匹配。0 分丢弃，稳定降序。
func (r *Ranker) ByKeyword(terms []string, candidates []*entity.Profile) []Ranked {
	needles := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			needles = append(needles, t)
		}
	}
	out := make([]Ranked, 0, len(candidates))
	if len(needles) == 0 {
		return out
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if score := keywordScore(needles, c); score > 0 {
			out = append(out, Ranked{Profile: c, Score: KeywordScore(score)})
		}
	}
	return r.sortAndCap(out)
}

func keywordScore(needles []string, p *entity.Profile) uint32 {
	bio := strings.ToLower(p.Bio)
	expertise := make([]string, len(p.Expertise))
	for i, e := range p.Expertise {
		expertise[i] = strings.ToLower(e)
	}

	var score uint32
	for _, n := range needles {
		for _, e := range expertise {
			if strings.Contains(e, n) {
				score += 2
			}
		}
		if bio != "" && strings.Contains(bio, n) {
			score++
		}
	}
	return score
}

func (r *Ranker) sortAndCap(items []Ranked) []Ranked {
	sort.SliceStable(items, func(i, j int) bool {
		c, err := items[i].Score.Compare(items[j].Score)
		return err == nil && c > 0
	})
	if len(items) > r.limit {
		items = items[:r.limit]
	}
	return items
}

// CosineSimilarity 余弦相似度，维度不一致或零向量返回 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
