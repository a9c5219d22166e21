package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/service"
	"scholar-match-api/internal/workflow/port"
	"scholar-match-api/internal/workflow/prompt"
	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/metrics"
)

const (
	DefaultInsightTimeout     = 8 * time.Second
	DefaultInsightConcurrency = 3
	maxOverlapTerms           = 3
)

// BreakerOptions LLM 熔断参数
type BreakerOptions struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// InsightOptions 解读生成参数
type InsightOptions struct {
	Enabled     bool
	Provider    string
	Timeout     time.Duration
	Concurrency int
	Breaker     BreakerOptions
}

// InsightRequest 单个候选的解读输入
type InsightRequest struct {
	Query      string
	SearchType entity.SearchType
	Candidate  *entity.Profile
	// Source 使用请求者 profile 匹配时非空
	Source *entity.Profile
}

// InsightGenerator 调用 LLM 生成匹配解读，失败时退化为模板文本
type InsightGenerator struct {
	models  port.ChatModelFactory
	prompts *prompt.Registry
	breaker *gobreaker.CircuitBreaker
	opts    InsightOptions
}

// NewInsightGenerator models 为 nil 时只生成模板解读
func NewInsightGenerator(models port.ChatModelFactory, prompts *prompt.Registry, opts InsightOptions) *InsightGenerator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultInsightTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultInsightConcurrency
	}
	if prompts == nil {
		prompts = prompt.NewRegistry()
	}
	b := opts.Breaker
	minRequests := b.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	ratio := b.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	settings := gobreaker.Settings{
		Name:        "insight-llm",
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &InsightGenerator{
		models:  models,
		prompts: prompts,
		breaker: gobreaker.NewCircuitBreaker(settings),
		opts:    opts,
	}
}

// Enabled 是否调用 LLM
func (g *InsightGenerator) Enabled() bool {
	return g != nil && g.opts.Enabled && g.models != nil
}

// Provider 返回使用的 LLM provider 名称
func (g *InsightGenerator) Provider() string {
	if g == nil {
		return ""
	}
	return g.opts.Provider
}

// BreakerState 熔断器当前状态
func (g *InsightGenerator) BreakerState() string {
	if g == nil || g.breaker == nil {
		return "disabled"
	}
	return g.breaker.State().String()
}

// Generate 为当前页候选生成解读，结果顺序与输入一致
func (g *InsightGenerator) Generate(ctx context.Context, reqs []InsightRequest) []string {
	out := make([]string, len(reqs))
	if len(reqs) == 0 {
		return out
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)
	for i := range reqs {
		i := i
		eg.Go(func() error {
			out[i] = g.GenerateOne(egCtx, reqs[i])
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// GenerateOne 生成单条解读，从不返回空串
func (g *InsightGenerator) GenerateOne(ctx context.Context, req InsightRequest) string {
	if !g.Enabled() {
		metrics.MatchingInsightTotal.WithLabelValues("template").Inc()
		return TemplateInsight(req)
	}

	ctx = service.WithWorkflowProvider(ctx, service.WorkflowMatchInsight, g.opts.Provider)
	text, err := g.complete(ctx, prompt.PromptMatchInsightV1, insightVariables(req))
	if err != nil {
		metrics.MatchingDegradedTotal.WithLabelValues("llm").Inc()
		metrics.MatchingInsightTotal.WithLabelValues("template").Inc()
		logger.Warn(ctx, "insight generation degraded to template",
			"candidate", req.Candidate.Ref().String(),
			"breaker", g.breaker.State().String(),
			"error", err.Error())
		return TemplateInsight(req)
	}
	metrics.MatchingInsightTotal.WithLabelValues("llm").Inc()
	return text
}

// Summarize 生成导师推荐列表的总结，失败时使用模板
func (g *InsightGenerator) Summarize(ctx context.Context, student *entity.Profile, shortlist []*entity.Profile) string {
	if len(shortlist) == 0 {
		return "No suitable supervisors were found for your profile yet."
	}
	if g.Enabled() && student != nil {
		ctx = service.WithWorkflowProvider(ctx, service.WorkflowRecommendation, g.opts.Provider)
		text, err := g.complete(ctx, prompt.PromptRecommendationSummaryV1, map[string]any{
			"student_interests": orNone(strings.Join(student.Expertise, ", ")),
			"student_field":     orNone(student.FieldOfStudy),
			"shortlist":         formatShortlist(shortlist),
		})
		if err == nil {
			return text
		}
		metrics.MatchingDegradedTotal.WithLabelValues("llm").Inc()
		logger.Warn(ctx, "recommendation summary degraded to template", "error", err.Error())
	}
	return templateSummary(shortlist)
}

func (g *InsightGenerator) complete(ctx context.Context, id prompt.PromptID, vars map[string]any) (string, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		chatModel, err := g.models.Get(callCtx, g.opts.Provider)
		if err != nil {
			return nil, fmt.Errorf("get chat model: %w", err)
		}
		tpl, err := g.prompts.ChatTemplate(id)
		if err != nil {
			return nil, fmt.Errorf("load prompt %s: %w", id, err)
		}
		msgs, err := tpl.Format(callCtx, vars)
		if err != nil {
			return nil, fmt.Errorf("format prompt %s: %w", id, err)
		}
		resp, err := chatModel.Generate(callCtx, msgs)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, errEmptyInsightContent
		}
		return strings.TrimSpace(resp.Content), nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func insightVariables(req InsightRequest) map[string]any {
	c := req.Candidate
	query := req.Query
	if req.Source != nil {
		query = "the searcher's own profile: " + orNone(strings.Join(req.Source.Terms(), ", "))
	}
	return map[string]any{
		"search_type":           string(req.SearchType),
		"query":                 query,
		"candidate_kind":        string(c.Kind),
		"candidate_name":        orNone(c.FullName),
		"candidate_institution": orNone(c.Institution),
		"candidate_expertise":   orNone(strings.Join(c.Expertise, ", ")),
		"candidate_field":       orNone(c.FieldOfStudy),
		"candidate_supervision": orNone(strings.Join(c.StyleOfSupervision, ", ")),
		"candidate_bio":         orNone(c.Bio),
		"overlap":               orNone(strings.Join(OverlapTerms(req), ", ")),
	}
}

// TemplateInsight 不依赖 LLM 的解读文本
func TemplateInsight(req InsightRequest) string {
	c := req.Candidate
	name := strings.TrimSpace(c.FullName)
	if name == "" {
		name = "This candidate"
	}
	against := fmt.Sprintf("your search for %q", NormalizeQuery(req.Query))
	if req.Source != nil {
		against = "your research profile"
	}

	var b strings.Builder
	overlap := OverlapTerms(req)
	switch {
	case len(overlap) > 0:
		fmt.Fprintf(&b, "%s works on %s, which overlaps with %s.", name, joinNatural(overlap), against)
	case len(c.Expertise) > 0:
		top := c.Expertise
		if len(top) > maxOverlapTerms {
			top = top[:maxOverlapTerms]
		}
		fmt.Fprintf(&b, "%s's research in %s is closely related to %s.", name, joinNatural(top), against)
	default:
		fmt.Fprintf(&b, "%s's profile is semantically similar to %s.", name, against)
	}
	if req.SearchType == entity.SearchSupervisor && len(c.StyleOfSupervision) > 0 {
		fmt.Fprintf(&b, " Supervision style: %s.", strings.Join(c.StyleOfSupervision, ", "))
	}
	return b.String()
}

var overlapStopwords = map[string]bool{
	"find": true, "with": true, "from": true, "that": true, "this": true, "into": true,
	"applied": true, "research": true, "supervisor": true, "students": true,
	"collaborators": true, "someone": true, "about": true, "using": true,
}

// OverlapTerms 候选研究方向中与查询（或请求者 profile）重叠的词条
func OverlapTerms(req InsightRequest) []string {
	needles := make([]string, 0, 8)
	if req.Source != nil {
		needles = append(needles, req.Source.Terms()...)
	} else {
		q := NormalizeQuery(req.Query)
		if q != "" {
			needles = append(needles, q)
		}
		for _, w := range tokenize(q) {
			if _, fp := firstPerson[w]; fp || len(w) < 4 || overlapStopwords[w] {
				continue
			}
			needles = append(needles, w)
		}
	}

	out := make([]string, 0, maxOverlapTerms)
	for _, term := range req.Candidate.Terms() {
		for _, n := range needles {
			if strings.Contains(term, n) || strings.Contains(n, term) {
				out = append(out, term)
				break
			}
		}
		if len(out) == maxOverlapTerms {
			break
		}
	}
	return out
}

func templateSummary(shortlist []*entity.Profile) string {
	names := make([]string, 0, maxOverlapTerms)
	for _, p := range shortlist {
		if len(names) == maxOverlapTerms {
			break
		}
		if p.FullName != "" {
			names = append(names, p.FullName)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("%d potential supervisors match your research profile.", len(shortlist))
	}
	return fmt.Sprintf("%d potential supervisors match your research profile. Strongest matches: %s.",
		len(shortlist), joinNatural(names))
}

func formatShortlist(ps []*entity.Profile) string {
	var b strings.Builder
	for i, p := range ps {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, orNone(p.FullName), orNone(p.Institution), orNone(strings.Join(p.Expertise, ", ")))
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
