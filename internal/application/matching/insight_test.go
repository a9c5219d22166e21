package matching

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/domain/entity"
)

func insightCandidate() *entity.Profile {
	return &entity.Profile{
		ID:                 "a1",
		Kind:               entity.ProfileAcademician,
		FullName:           "Dr Amina",
		Expertise:          []string{"Machine Learning", "Medical Imaging", "Optimisation"},
		StyleOfSupervision: []string{"hands-on", "weekly meetings"},
	}
}

func TestTemplateInsight(t *testing.T) {
	tests := []struct {
		name     string
		req      InsightRequest
		contains []string
		excludes []string
	}{
		{
			name:     "overlap with query",
			req:      InsightRequest{Query: "medical imaging", SearchType: entity.SearchSupervisor, Candidate: insightCandidate()},
			contains: []string{"Dr Amina works on medical imaging", `your search for "medical imaging"`, "Supervision style: hands-on, weekly meetings."},
		},
		{
			name: "overlap with requester profile",
			req: InsightRequest{
				Query: "for me", SearchType: entity.SearchSupervisor, Candidate: insightCandidate(),
				Source: &entity.Profile{Expertise: []string{"machine learning"}},
			},
			contains: []string{"machine learning", "your research profile"},
		},
		{
			name:     "no overlap falls back to expertise",
			req:      InsightRequest{Query: "ancient history", SearchType: entity.SearchCollaborators, Candidate: insightCandidate()},
			contains: []string{"research in Machine Learning, Medical Imaging and Optimisation"},
			excludes: []string{"Supervision style"},
		},
		{
			name:     "empty profile",
			req:      InsightRequest{Query: "x", SearchType: entity.SearchStudents, Candidate: &entity.Profile{ID: "s"}},
			contains: []string{"This candidate's profile is semantically similar"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TemplateInsight(tt.req)
			for _, c := range tt.contains {
				assert.Contains(t, got, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, got, e)
			}
		})
	}
}

func TestOverlapTermsCapsAndSkipsStopwords(t *testing.T) {
	c := &entity.Profile{Expertise: []string{"learning theory", "machine learning", "deep learning", "learning analytics"}}
	got := OverlapTerms(InsightRequest{Query: "learning for me", Candidate: c})
	assert.Equal(t, []string{"learning theory", "machine learning", "deep learning"}, got)

	assert.Empty(t, OverlapTerms(InsightRequest{Query: "find my supervisor", Candidate: &entity.Profile{Expertise: []string{"supervisor training"}}}))
}

func TestGenerateUsesModelAndKeepsOrder(t *testing.T) {
	chat := &fakeChatModel{reply: func(msgs []*schema.Message) (string, error) {
		user := msgs[len(msgs)-1].Content
		for _, line := range strings.Split(user, "\n") {
			if strings.HasPrefix(line, "Name: ") {
				return "  insight for " + strings.TrimPrefix(line, "Name: ") + "  ", nil
			}
		}
		return "", nil
	}}
	models := &fakeModels{model: chat}
	g := NewInsightGenerator(models, nil, InsightOptions{Enabled: true, Provider: "openai", Concurrency: 2})

	reqs := make([]InsightRequest, 0, 5)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		reqs = append(reqs, InsightRequest{Query: "robotics", SearchType: entity.SearchSupervisor, Candidate: &entity.Profile{ID: name, FullName: name}})
	}
	got := g.Generate(context.Background(), reqs)
	assert.Equal(t, []string{"insight for A", "insight for B", "insight for C", "insight for D", "insight for E"}, got)
	assert.Equal(t, 5, chat.calls)
	assert.Contains(t, models.names, "openai")
}

func TestGenerateFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{"provider error", &fakeModels{model: &fakeChatModel{reply: func([]*schema.Message) (string, error) { return "", errors.New("429") }}}},
		{"empty content", &fakeModels{model: &fakeChatModel{reply: func([]*schema.Message) (string, error) { return "   ", nil }}}},
		{"factory error", &fakeModels{err: errors.New("provider not configured")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewInsightGenerator(tt.models, nil, InsightOptions{Enabled: true})
			req := InsightRequest{Query: "medical imaging", SearchType: entity.SearchSupervisor, Candidate: insightCandidate()}
			assert.Equal(t, TemplateInsight(req), g.GenerateOne(context.Background(), req))
		})
	}
}

func TestGenerateRespectsTimeout(t *testing.T) {
	chat := &blockingChatModel{}
	g := NewInsightGenerator(&fakeModels{model: chat}, nil, InsightOptions{Enabled: true, Timeout: 20 * time.Millisecond})
	req := InsightRequest{Query: "medical imaging", SearchType: entity.SearchSupervisor, Candidate: insightCandidate()}

	start := time.Now()
	got := g.GenerateOne(context.Background(), req)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, TemplateInsight(req), got)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	chat := &fakeChatModel{reply: func([]*schema.Message) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("upstream 500")
	}}
	g := NewInsightGenerator(&fakeModels{model: chat}, nil, InsightOptions{
		Enabled: true,
		Breaker: BreakerOptions{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Minute},
	})
	req := InsightRequest{Query: "robotics", SearchType: entity.SearchSupervisor, Candidate: insightCandidate()}
	for i := 0; i < 6; i++ {
		g.GenerateOne(context.Background(), req)
	}
	assert.Equal(t, "open", g.BreakerState())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDisabledGeneratorUsesTemplate(t *testing.T) {
	g := NewInsightGenerator(nil, nil, InsightOptions{Enabled: true})
	assert.False(t, g.Enabled())
	req := InsightRequest{Query: "medical imaging", SearchType: entity.SearchSupervisor, Candidate: insightCandidate()}
	assert.Equal(t, TemplateInsight(req), g.GenerateOne(context.Background(), req))
	assert.Equal(t, "closed", g.BreakerState())
}

func TestSummarize(t *testing.T) {
	g := NewInsightGenerator(nil, nil, InsightOptions{})
	assert.Contains(t, g.Summarize(context.Background(), nil, nil), "No suitable supervisors")

	shortlist := []*entity.Profile{{FullName: "A"}, {FullName: "B"}, {FullName: "C"}, {FullName: "D"}}
	assert.Equal(t, "4 potential supervisors match your research profile. Strongest matches: A, B and C.",
		g.Summarize(context.Background(), &entity.Profile{}, shortlist))

	chat := &fakeChatModel{reply: func(msgs []*schema.Message) (string, error) {
		require.Contains(t, msgs[len(msgs)-1].Content, "1. A")
		return "A stands out.", nil
	}}
	g = NewInsightGenerator(&fakeModels{model: chat}, nil, InsightOptions{Enabled: true})
	assert.Equal(t, "A stands out.", g.Summarize(context.Background(), &entity.Profile{Expertise: []string{"x"}}, shortlist))
}
