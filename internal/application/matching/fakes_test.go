package matching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float64
	fallback []float64
	err      error
	calls    int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = f.fallback
	}
	return out, nil
}

type fakeIndex struct {
	hits      []repository.VectorHit
	err       error
	lastQuery repository.VectorQuery
	upserted  []repository.ProfileVector
}

func (f *fakeIndex) Name() string { return "fake" }

func (f *fakeIndex) EnsureReady(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, vs []repository.ProfileVector) error {
	f.upserted = append(f.upserted, vs...)
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, q repository.VectorQuery) ([]repository.VectorHit, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// fakeProfiles 按 kind 存放候选，ListCandidates 复刻仓储的过滤与截断语义
type fakeProfiles struct {
	byKind     map[entity.ProfileKind][]*entity.Profile
	err        error
	listCalls  int
	lastFilter repository.CandidateFilter
}

func newFakeProfiles(ps ...*entity.Profile) *fakeProfiles {
	f := &fakeProfiles{byKind: map[entity.ProfileKind][]*entity.Profile{}}
	for _, p := range ps {
		f.byKind[p.Kind] = append(f.byKind[p.Kind], p)
	}
	return f
}

func (f *fakeProfiles) ListCandidates(_ context.Context, filter repository.CandidateFilter) ([]*entity.Profile, error) {
	f.listCalls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	ids := map[string]bool{}
	for _, id := range filter.IDs {
		ids[id] = true
	}
	out := make([]*entity.Profile, 0)
	for _, kind := range filter.Kinds {
		for _, p := range f.byKind[kind] {
			if filter.ExcludeUserID != "" && p.UserID == filter.ExcludeUserID {
				continue
			}
			if len(ids) > 0 && !ids[p.ID] {
				continue
			}
			if filter.RequireVerified && kind == entity.ProfileAcademician && !p.Verified {
				continue
			}
			if filter.RequireSupervisorAvailability && !p.AvailableAsSupervisor {
				continue
			}
			if filter.RequireComplete && !p.Complete() {
				continue
			}
			out = append(out, p)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, kind entity.ProfileKind, id string) (*entity.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.byKind[kind] {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) GetByUserID(_ context.Context, kind entity.ProfileKind, userID string) (*entity.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.byKind[kind] {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

type memoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*entity.SearchHistory
	done    chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{done: make(chan struct{}, 16)}
}

func (f *fakeHistory) Create(_ context.Context, h *entity.SearchHistory) error {
	f.mu.Lock()
	f.entries = append(f.entries, h)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeHistory) ListByUser(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.SearchHistory], error) {
	return nil, errors.New("not implemented")
}

// fakeChatModel 返回固定回复或错误
type fakeChatModel struct {
	mu    sync.Mutex
	reply func(msgs []*schema.Message) (string, error)
	calls int
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	text, err := f.reply(msgs)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type fakeModels struct {
	mu    sync.Mutex
	model model.BaseChatModel
	err   error
	names []string
}

func (f *fakeModels) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

// blockingChatModel 阻塞直到 ctx 结束
type blockingChatModel struct{}

func (blockingChatModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}
