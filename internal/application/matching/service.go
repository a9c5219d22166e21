// Package matching 实现 AI 匹配流程：查询分类、候选召回、相似度排序、分页、解读与缓存
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/domain/service"
	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/metrics"
)

const (
	minQueryLength = 2
	maxQueryLength = 200

	pathEmbedding = "embedding"
	pathVector    = "vector"
	pathKeyword   = "keyword"

	historyTimeout = 5 * time.Second
)

// ProfileReader 匹配流程需要的 profile 读取能力
type ProfileReader interface {
	ListCandidates(ctx context.Context, filter repository.CandidateFilter) ([]*entity.Profile, error)
	GetProfile(ctx context.Context, kind entity.ProfileKind, id string) (*entity.Profile, error)
	GetByUserID(ctx context.Context, kind entity.ProfileKind, userID string) (*entity.Profile, error)
}

// CoverageReader embedding 覆盖率统计
type CoverageReader interface {
	EmbeddingCoverage(ctx context.Context) ([]repository.EmbeddingCoverage, error)
}

// HistoryRecorder 搜索记录写入
type HistoryRecorder interface {
	Create(ctx context.Context, h *entity.SearchHistory) error
}

// Options 匹配服务参数
type Options struct {
	PerPage        int
	CandidateLimit int
	SearchTimeout  time.Duration
	CacheDriver    string
}

// SearchRequest 搜索请求
type SearchRequest struct {
	Query       string
	SearchType  string
	Page        int
	StudentType string
}

// InsightQuery 单个 profile 解读请求
type InsightQuery struct {
	ProfileID   string
	ProfileType string
	Query       string
}

// Service 匹配服务
type Service struct {
	profiles   ProfileReader
	coverage   CoverageReader
	embeddings *EmbeddingAdapter
	classifier *Classifier
	ranker     *Ranker
	insights   *InsightGenerator
	cache      *ResultCache
	history    HistoryRecorder
	opts       Options
}

// NewService 创建匹配服务。embeddings、coverage、history 可以为 nil。
func NewService(
	profiles ProfileReader,
	coverage CoverageReader,
	embeddings *EmbeddingAdapter,
	classifier *Classifier,
	ranker *Ranker,
	insights *InsightGenerator,
	cache *ResultCache,
	history HistoryRecorder,
	opts Options,
) *Service {
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultRankLimit
	}
	if classifier == nil {
		classifier = NewClassifier(DefaultBaseThreshold, DefaultSpecificThreshold)
	}
	if ranker == nil {
		ranker = NewRanker(opts.CandidateLimit)
	}
	if insights == nil {
		insights = NewInsightGenerator(nil, nil, InsightOptions{})
	}
	if cache == nil {
		cache = NewResultCache(nil, 0, "")
	}
	return &Service{
		profiles:   profiles,
		coverage:   coverage,
		embeddings: embeddings,
		classifier: classifier,
		ranker:     ranker,
		insights:   insights,
		cache:      cache,
		history:    history,
		opts:       opts,
	}
}

type validRequest struct {
	query       string
	searchType  entity.SearchType
	page        int
	studentType entity.ProfileKind
}

func validateSearch(req SearchRequest) (validRequest, error) {
	var v validRequest
	q := strings.TrimSpace(req.Query)
	n := utf8.RuneCountInString(q)
	if n < minQueryLength || n > maxQueryLength {
		return v, invalid(ErrInvalidQuery, "query", "The query must be between %d and %d characters.", minQueryLength, maxQueryLength)
	}
	st, ok := entity.ParseSearchType(req.SearchType)
	if !ok {
		return v, invalid(ErrInvalidSearchType, "searchType", "The search type must be one of supervisor, students, collaborators.")
	}
	page := req.Page
	if page < 1 {
		return v, invalid(ErrInvalidPage, "page", "The page must be at least 1.")
	}
	var studentKind entity.ProfileKind
	if s := strings.TrimSpace(req.StudentType); s != "" {
		k, ok := entity.ParseProfileKind(s)
		if !ok || k == entity.ProfileAcademician {
			return v, invalid(ErrInvalidStudentType, "studentType", "The student type must be postgraduate or undergraduate.")
		}
		if st == entity.SearchStudents {
			studentKind = k
		}
	}
	return validRequest{query: q, searchType: st, page: page, studentType: studentKind}, nil
}

// Search 执行一次匹配搜索，返回响应 JSON。相同请求在缓存有效期内返回相同字节。
func (s *Service) Search(ctx context.Context, requester entity.Requester, req SearchRequest) ([]byte, error) {
	v, err := validateSearch(req)
	if err != nil {
		return nil, err
	}
	if !v.searchType.AllowedFor(requester.Role) {
		return nil, roleNotAllowed(v.searchType)
	}

	key := s.cache.Key(CacheKey{
		Query:       v.query,
		SearchType:  string(v.searchType),
		Page:        v.page,
		RequesterID: requesterKey(requester),
		StudentType: string(v.studentType),
	})

	start := time.Now()
	ctx = service.WithWorkflow(ctx, service.WorkflowMatchSearch)
	path := ""
	payload, hit, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		if s.opts.SearchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
			defer cancel()
		}
		body, outcome, err := s.compute(ctx, requester, v)
		path = outcome.path
		return body, !outcome.degraded && ctx.Err() == nil, err
	})
	if err != nil {
		return nil, err
	}

	cacheLabel := "miss"
	if hit {
		cacheLabel = "hit"
		path = "cached"
	} else if path == "" {
		// 并发未命中合并到了其他请求的计算结果
		path = "shared"
	}
	metrics.MatchingSearchTotal.WithLabelValues(string(v.searchType), path, cacheLabel).Inc()
	metrics.MatchingSearchDuration.WithLabelValues(string(v.searchType)).Observe(time.Since(start).Seconds())
	return payload, nil
}

func (s *Service) compute(ctx context.Context, requester entity.Requester, v validRequest) ([]byte, rankOutcome, error) {
	class := s.classifier.Classify(v.query)
	outcome := s.rank(ctx, requester, class, v.searchType, v.searchType.CandidateKinds(v.studentType))

	pageItems, page := PageOf(outcome.ranked, v.page, s.opts.PerPage)
	reqs := make([]InsightRequest, len(pageItems))
	for i, it := range pageItems {
		reqs[i] = InsightRequest{Query: v.query, SearchType: v.searchType, Candidate: it.Profile, Source: outcome.source}
	}
	insights := s.insights.Generate(ctx, reqs)

	resp := Response{
		Query:       v.query,
		SearchType:  string(v.searchType),
		Matches:     BuildMatches(v.searchType, pageItems, insights),
		Total:       len(outcome.ranked),
		ProfileUsed: outcome.source != nil,
		CurrentPage: v.page,
		PerPage:     s.opts.PerPage,
		HasMore:     page.HasMore,
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, outcome, fmt.Errorf("marshal search response: %w", err)
	}

	s.recordHistory(ctx, &entity.SearchHistory{
		ID:          uuid.NewString(),
		UserID:      requester.UserID,
		Query:       v.query,
		SearchType:  v.searchType,
		Total:       resp.Total,
		ProfileUsed: resp.ProfileUsed,
		ScorePath:   outcome.path,
		CreatedAt:   time.Now().UTC(),
	})
	return body, outcome, nil
}

type rankOutcome struct {
	ranked []Ranked
	source *entity.Profile
	path   string
	// degraded 候选读取失败，结果不完整，不能写入缓存
	degraded bool
}

// rank 按 向量索引 → 进程内余弦 → 关键词 的顺序逐级退化
func (s *Service) rank(ctx context.Context, requester entity.Requester, class QueryClass, st entity.SearchType, kinds []entity.ProfileKind) rankOutcome {
	var out rankOutcome
	if class.Vague {
		out.source = s.requesterProfile(ctx, requester)
	}
	filter := repository.CandidateFilter{
		Kinds:                         kinds,
		ExcludeUserID:                 requester.UserID,
		RequireVerified:               st != entity.SearchStudents,
		RequireSupervisorAvailability: st == entity.SearchSupervisor,
		RequireComplete:               true,
		Limit:                         s.opts.CandidateLimit,
	}

	if s.embeddings.Enabled() {
		qvec, err := s.queryVector(ctx, class, out.source)
		if err != nil {
			metrics.MatchingDegradedTotal.WithLabelValues("embedding").Inc()
			logger.Warn(ctx, "query embedding failed, using keyword ranking", "error", err.Error())
		} else {
			if s.embeddings.UseIndex(requesterKey(requester)) {
				if ranked, ok := s.rankByIndex(ctx, qvec, filter, class.Threshold); ok {
					out.ranked, out.path = ranked, pathVector
					return out
				}
			}
			candidates, ok := s.candidates(ctx, filter)
			out.degraded = !ok
			if hasEmbeddings(candidates) {
				out.ranked, out.path = s.ranker.ByEmbedding(qvec, candidates, class.Threshold), pathEmbedding
				return out
			}
			out.ranked, out.path = s.ranker.ByKeyword(s.keywordTerms(class, out.source), candidates), pathKeyword
			return out
		}
	}

	candidates, ok := s.candidates(ctx, filter)
	out.degraded = !ok
	out.ranked, out.path = s.ranker.ByKeyword(s.keywordTerms(class, out.source), candidates), pathKeyword
	return out
}

func (s *Service) queryVector(ctx context.Context, class QueryClass, source *entity.Profile) ([]float32, error) {
	if source != nil {
		return s.embeddings.ProfileVector(ctx, source)
	}
	return s.embeddings.EmbedText(ctx, class.Normalized)
}

func (s *Service) rankByIndex(ctx context.Context, qvec []float32, filter repository.CandidateFilter, threshold float64) ([]Ranked, bool) {
	hits, err := s.embeddings.SearchIndex(ctx, qvec, filter.Kinds, filter.Limit)
	if err != nil {
		metrics.MatchingDegradedTotal.WithLabelValues("vector").Inc()
		logger.Warn(ctx, "vector index search failed, using in-process cosine", "error", err.Error())
		return nil, false
	}
	if len(hits) == 0 {
		return []Ranked{}, true
	}
	candidates, err := s.hydrate(ctx, hits, filter)
	if err != nil {
		metrics.MatchingDegradedTotal.WithLabelValues("database").Inc()
		logger.Error(ctx, "hydrate vector hits failed", err)
		return nil, false
	}
	return s.ranker.ByHits(hits, candidates, threshold), true
}

// hydrate 按 kind 分别读取命中的 profile，不同 kind 的 id 互不串用
func (s *Service) hydrate(ctx context.Context, hits []repository.VectorHit, filter repository.CandidateFilter) ([]*entity.Profile, error) {
	idsByKind := make(map[entity.ProfileKind][]string, len(filter.Kinds))
	for _, h := range hits {
		idsByKind[h.Ref.Kind] = append(idsByKind[h.Ref.Kind], h.Ref.ID)
	}
	out := make([]*entity.Profile, 0, len(hits))
	for _, kind := range filter.Kinds {
		ids := idsByKind[kind]
		if len(ids) == 0 {
			continue
		}
		f := filter
		f.Kinds = []entity.ProfileKind{kind}
		f.IDs = ids
		f.Limit = len(ids)
		ps, err := s.profiles.ListCandidates(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s hits: %w", kind, err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

// candidates 读取失败时返回空集合与 false
func (s *Service) candidates(ctx context.Context, filter repository.CandidateFilter) ([]*entity.Profile, bool) {
	cands, err := s.profiles.ListCandidates(ctx, filter)
	if err != nil {
		metrics.MatchingDegradedTotal.WithLabelValues("database").Inc()
		logger.Error(ctx, "list candidates failed, returning empty result", err)
		return nil, false
	}
	return cands, true
}

func (s *Service) keywordTerms(class QueryClass, source *entity.Profile) []string {
	if source != nil {
		if terms := source.Terms(); len(terms) > 0 {
			return terms
		}
	}
	return []string{class.Normalized}
}

// requesterProfile 模糊查询时回退使用的请求者 profile，没有或不可用时返回 nil
func (s *Service) requesterProfile(ctx context.Context, requester entity.Requester) *entity.Profile {
	kind, ok := requester.Role.ProfileKind()
	if !ok || requester.UserID == "" {
		return nil
	}
	p, err := s.profiles.GetByUserID(ctx, kind, requester.UserID)
	if err != nil {
		logger.Warn(ctx, "load requester profile failed", "user_id", requester.UserID, "error", err.Error())
		return nil
	}
	if p == nil || !p.Complete() {
		return nil
	}
	return p
}

func (s *Service) recordHistory(ctx context.Context, h *entity.SearchHistory) {
	if s.history == nil || h.UserID == "" {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		hctx, cancel := context.WithTimeout(bg, historyTimeout)
		defer cancel()
		if err := s.history.Create(hctx, h); err != nil {
			logger.Warn(hctx, "record search history failed", "error", err.Error())
		}
	}()
}

// Insight 为单个 profile 生成解读
func (s *Service) Insight(ctx context.Context, requester entity.Requester, q InsightQuery) (string, error) {
	kind, ok := entity.ParseProfileKind(q.ProfileType)
	if !ok {
		return "", invalid(ErrInvalidProfileType, "profile_type", "The profile type must be academician, postgraduate or undergraduate.")
	}
	if strings.TrimSpace(q.ProfileID) == "" {
		return "", invalid(ErrInvalidQuery, "profile_id", "The profile id is required.")
	}
	p, err := s.profiles.GetProfile(ctx, kind, q.ProfileID)
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return "", profileNotFound()
	}

	query := strings.TrimSpace(q.Query)
	var source *entity.Profile
	if query == "" || IsVague(query) {
		source = s.requesterProfile(ctx, requester)
	}
	st := entity.SearchCollaborators
	switch {
	case kind == entity.ProfileAcademician && requester.Role.IsStudent():
		st = entity.SearchSupervisor
	case kind != entity.ProfileAcademician && requester.Role == entity.RoleAcademician:
		st = entity.SearchStudents
	}
	return s.insights.GenerateOne(service.WithWorkflow(ctx, service.WorkflowMatchInsight), InsightRequest{
		Query:      query,
		SearchType: st,
		Candidate:  p,
		Source:     source,
	}), nil
}

// Recommendation 导师推荐结果
type Recommendation struct {
	Query       string  `json:"query"`
	Summary     string  `json:"summary"`
	ProfileUsed bool    `json:"profile_used"`
	ScorePath   string  `json:"score_path"`
	Total       int     `json:"total"`
	Matches     []Match `json:"matches"`
}

// DefaultRecommendationQuery 未提供查询时使用的模糊查询，触发 profile 回退
const DefaultRecommendationQuery = "find supervisor for me"

// Recommend 为学生生成导师推荐，不经过结果缓存。只有第一页附带解读。
func (s *Service) Recommend(ctx context.Context, requester entity.Requester, query string, limit int, progress func(int)) (*Recommendation, error) {
	if progress == nil {
		progress = func(int) {}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultRecommendationQuery
	}
	if limit <= 0 || limit > s.opts.CandidateLimit {
		limit = s.opts.CandidateLimit
	}
	ctx = service.WithWorkflow(ctx, service.WorkflowRecommendation)

	student := s.requesterProfile(ctx, requester)
	if student == nil {
		return nil, profileNotFound()
	}
	progress(10)

	class := s.classifier.Classify(query)
	// 推荐始终以学生自己的 profile 为准
	class.Vague = true
	outcome := s.rank(ctx, requester, class, entity.SearchSupervisor, entity.SearchSupervisor.CandidateKinds(""))
	ranked := outcome.ranked
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	progress(60)

	first, _ := PageOf(ranked, 1, s.opts.PerPage)
	reqs := make([]InsightRequest, len(first))
	for i, it := range first {
		reqs[i] = InsightRequest{Query: query, SearchType: entity.SearchSupervisor, Candidate: it.Profile, Source: outcome.source}
	}
	insights := s.insights.Generate(ctx, reqs)
	progress(85)

	shortlist := make([]*entity.Profile, 0, len(first))
	for _, it := range first {
		shortlist = append(shortlist, it.Profile)
	}
	return &Recommendation{
		Query:       query,
		Summary:     s.insights.Summarize(ctx, student, shortlist),
		ProfileUsed: outcome.source != nil,
		ScorePath:   outcome.path,
		Total:       len(ranked),
		Matches:     BuildMatches(entity.SearchSupervisor, ranked, insights),
	}, nil
}

// Diagnostics 匹配流程运行时配置
type Diagnostics struct {
	VectorEnabled     bool                           `json:"vector_enabled"`
	VectorProvider    string                         `json:"vector_provider"`
	RolloutPercentage int                            `json:"rollout_percentage"`
	EmbeddingEnabled  bool                           `json:"embedding_enabled"`
	EmbeddingModel    string                         `json:"embedding_model"`
	InsightEnabled    bool                           `json:"insight_enabled"`
	LLMProvider       string                         `json:"llm_provider"`
	BreakerState      string                         `json:"breaker_state"`
	CacheDriver       string                         `json:"cache_driver"`
	CachePrefix       string                         `json:"cache_prefix"`
	PerPage           int                            `json:"per_page"`
	CandidateLimit    int                            `json:"candidate_limit"`
	Coverage          []repository.EmbeddingCoverage `json:"embedding_coverage"`
}

// Diagnostics 返回诊断信息，覆盖率统计失败时其余字段仍然返回
func (s *Service) Diagnostics(ctx context.Context) *Diagnostics {
	rollout := s.embeddings.Rollout()
	d := &Diagnostics{
		VectorEnabled:     rollout.Enabled && s.embeddings.IndexName() != "",
		VectorProvider:    s.embeddings.IndexName(),
		RolloutPercentage: rollout.Percentage,
		EmbeddingEnabled:  s.embeddings.Enabled(),
		EmbeddingModel:    s.embeddings.Model(),
		InsightEnabled:    s.insights.Enabled(),
		LLMProvider:       s.insights.Provider(),
		BreakerState:      s.insights.BreakerState(),
		CacheDriver:       s.opts.CacheDriver,
		CachePrefix:       s.cache.Prefix(),
		PerPage:           s.opts.PerPage,
		CandidateLimit:    s.opts.CandidateLimit,
		Coverage:          []repository.EmbeddingCoverage{},
	}
	if s.coverage != nil {
		cov, err := s.coverage.EmbeddingCoverage(ctx)
		if err != nil {
			logger.Warn(ctx, "embedding coverage unavailable", "error", err.Error())
		} else {
			d.Coverage = cov
		}
	}
	return d
}

// ClearResult 缓存清理结果
type ClearResult struct {
	Cleared    int    `json:"cleared"`
	BestEffort bool   `json:"best_effort"`
	Pattern    string `json:"pattern"`
}

// ClearCache 尽力清除匹配结果缓存
func (s *Service) ClearCache(ctx context.Context) (*ClearResult, error) {
	n, err := s.cache.Flush(ctx)
	if err != nil {
		return nil, fmt.Errorf("flush result cache: %w", err)
	}
	logger.Info(ctx, "matching cache cleared", "cleared", n, "prefix", s.cache.Prefix())
	return &ClearResult{Cleared: n, BestEffort: true, Pattern: s.cache.Prefix() + "*"}, nil
}

func requesterKey(r entity.Requester) string {
	if r.UserID == "" {
		return "guest"
	}
	return r.UserID
}

func hasEmbeddings(ps []*entity.Profile) bool {
	for _, p := range ps {
		if p != nil && len(p.Embedding) > 0 {
			return true
		}
	}
	return false
}
