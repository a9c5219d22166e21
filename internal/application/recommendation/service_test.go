package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/infrastructure/messaging"
)

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*entity.RecommendationJob
	progress  map[string][]int
	err       error
	calls     []string
	userLocks map[string]*sync.Mutex
	// createDelay 拉长检查与写入之间的窗口
	createDelay time.Duration
	// conflict 非空时 Create 写入它并返回 ErrActiveJobExists，模拟另一个事务先提交
	conflict *entity.RecommendationJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs:      map[string]*entity.RecommendationJob{},
		progress:  map[string][]int{},
		userLocks: map[string]*sync.Mutex{},
	}
}

type heldLocksKey struct{}

// fakeTx 事务结束时释放事务内获取的用户锁
type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	var held []*sync.Mutex
	err := fn(context.WithValue(ctx, heldLocksKey{}, &held))
	for _, m := range held {
		m.Unlock()
	}
	return err
}

func (f *fakeJobs) LockUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "lock")
	m, ok := f.userLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		f.userLocks[userID] = m
	}
	f.mu.Unlock()

	held, ok := ctx.Value(heldLocksKey{}).(*[]*sync.Mutex)
	if !ok {
		return nil
	}
	m.Lock()
	*held = append(*held, m)
	return nil
}

func (f *fakeJobs) Create(_ context.Context, job *entity.RecommendationJob) error {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.err != nil {
		return f.err
	}
	if f.conflict != nil {
		cp := *f.conflict
		f.jobs[cp.ID] = &cp
		return repository.ErrActiveJobExists
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*entity.RecommendationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) Update(_ context.Context, job *entity.RecommendationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[id] = append(f.progress[id], progress)
	if j, ok := f.jobs[id]; ok {
		j.UpdateProgress(progress)
	}
	return nil
}

func (f *fakeJobs) FindActiveByUser(_ context.Context, userID string) (*entity.RecommendationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "find")
	if f.err != nil {
		return nil, f.err
	}
	for _, j := range f.jobs {
		if j.UserID == userID && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) ListByUser(_ context.Context, userID string, p repository.Pagination) (*repository.PagedResult[*entity.RecommendationJob], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.RecommendationJob, 0)
	for _, j := range f.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return repository.NewPagedResult(out, int64(len(out)), p), nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.RecommendationJobMessage
	err  error
}

func (f *fakePublisher) PublishRecommendationJob(_ context.Context, job *messaging.RecommendationJobMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, job)
	return "1-0", nil
}

type fakeRecommender struct {
	rec       *matching.Recommendation
	err       error
	requester entity.Requester
	limit     int
}

func (f *fakeRecommender) Recommend(_ context.Context, r entity.Requester, query string, limit int, progress func(int)) (*matching.Recommendation, error) {
	f.requester = r
	f.limit = limit
	progress(10)
	if f.err != nil {
		return nil, f.err
	}
	progress(85)
	return f.rec, nil
}

var student = entity.Requester{UserID: "u-1", Role: entity.RolePostgraduate, ProfileID: "pg-1"}

func TestService_Enqueue(t *testing.T) {
	t.Run("creates and publishes", func(t *testing.T) {
		jobs, pub := newFakeJobs(), &fakePublisher{}
		svc := NewService(jobs, nil, pub, nil, Options{})

		job, created, err := svc.Enqueue(context.Background(), student, "  nlp  ")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, entity.JobStatusPending, job.Status)
		assert.Equal(t, "nlp", job.Query)
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, job.ID, pub.msgs[0].JobID)
		assert.Equal(t, "postgraduate", pub.msgs[0].Role)
	})

	t.Run("returns active job instead of creating another", func(t *testing.T) {
		jobs, pub := newFakeJobs(), &fakePublisher{}
		svc := NewService(jobs, nil, pub, nil, Options{})

		first, _, err := svc.Enqueue(context.Background(), student, "")
		require.NoError(t, err)
		second, created, err := svc.Enqueue(context.Background(), student, "other")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, pub.msgs, 1)
	})

	t.Run("locks the user before checking and creating", func(t *testing.T) {
		jobs := newFakeJobs()
		svc := NewService(jobs, fakeTx{}, &fakePublisher{}, nil, Options{})

		_, created, err := svc.Enqueue(context.Background(), student, "")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []string{"lock", "find", "create"}, jobs.calls)
	})

	t.Run("concurrent requests create a single job", func(t *testing.T) {
		jobs, pub := newFakeJobs(), &fakePublisher{}
		jobs.createDelay = 10 * time.Millisecond
		svc := NewService(jobs, fakeTx{}, pub, nil, Options{})

		const n = 8
		ids := make([]string, n)
		var createdCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				job, created, err := svc.Enqueue(context.Background(), student, "nlp")
				if !assert.NoError(t, err) {
					return
				}
				if created {
					createdCount.Add(1)
				}
				ids[i] = job.ID
			}(i)
		}
		wg.Wait()

		assert.EqualValues(t, 1, createdCount.Load())
		assert.Len(t, jobs.jobs, 1)
		assert.Len(t, pub.msgs, 1)
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("unique conflict returns the winning job", func(t *testing.T) {
		jobs, pub := newFakeJobs(), &fakePublisher{}
		winner := entity.NewRecommendationJob(student, "first")
		winner.ID = "winner"
		jobs.conflict = winner
		svc := NewService(jobs, nil, pub, nil, Options{})

		job, created, err := svc.Enqueue(context.Background(), student, "second")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "winner", job.ID)
		assert.Empty(t, pub.msgs)
	})

	t.Run("rejects academicians", func(t *testing.T) {
		svc := NewService(newFakeJobs(), nil, &fakePublisher{}, nil, Options{})
		_, _, err := svc.Enqueue(context.Background(), entity.Requester{UserID: "a", Role: entity.RoleAcademician}, "")
		assert.ErrorIs(t, err, ErrNotStudent)
	})

	t.Run("publish failure marks job failed", func(t *testing.T) {
		jobs := newFakeJobs()
		svc := NewService(jobs, nil, &fakePublisher{err: errors.New("redis down")}, nil, Options{})

		_, _, err := svc.Enqueue(context.Background(), student, "")
		require.ErrorIs(t, err, ErrEnqueueFailed)
		require.Len(t, jobs.jobs, 1)
		for _, j := range jobs.jobs {
			assert.Equal(t, entity.JobStatusFailed, j.Status)
		}
	})
}

func TestService_Status(t *testing.T) {
	jobs := newFakeJobs()
	svc := NewService(jobs, nil, &fakePublisher{}, nil, Options{})
	job, _, err := svc.Enqueue(context.Background(), student, "")
	require.NoError(t, err)

	got, err := svc.Status(context.Background(), student, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.Status(context.Background(), entity.Requester{UserID: "u-2", Role: entity.RoleUndergraduate}, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.Status(context.Background(), student, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_Process(t *testing.T) {
	enqueue := func(t *testing.T, jobs *fakeJobs) string {
		svc := NewService(jobs, nil, &fakePublisher{}, nil, Options{})
		job, _, err := svc.Enqueue(context.Background(), student, "graph learning")
		require.NoError(t, err)
		return job.ID
	}

	t.Run("completes with result", func(t *testing.T) {
		jobs := newFakeJobs()
		id := enqueue(t, jobs)
		rec := &fakeRecommender{rec: &matching.Recommendation{Query: "graph learning", Summary: "ok", Total: 2, Matches: []matching.Match{}}}
		svc := NewService(jobs, nil, nil, rec, Options{MaxMatches: 20})

		require.NoError(t, svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: id}))

		stored := jobs.jobs[id]
		assert.Equal(t, entity.JobStatusCompleted, stored.Status)
		assert.Equal(t, 100, stored.Progress)
		assert.Equal(t, 20, rec.limit)
		assert.Equal(t, student.UserID, rec.requester.UserID)
		assert.Equal(t, []int{10, 85}, jobs.progress[id])

		var body map[string]any
		require.NoError(t, json.Unmarshal(stored.Result, &body))
		assert.Equal(t, "ok", body["summary"])
	})

	t.Run("missing profile fails permanently", func(t *testing.T) {
		jobs := newFakeJobs()
		id := enqueue(t, jobs)
		svc := NewService(jobs, nil, nil, &fakeRecommender{err: &matching.RequestError{Kind: matching.ErrProfileNotFound}}, Options{})

		require.NoError(t, svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: id}))
		assert.Equal(t, entity.JobStatusFailed, jobs.jobs[id].Status)
	})

	t.Run("transient error retries then fails", func(t *testing.T) {
		jobs := newFakeJobs()
		id := enqueue(t, jobs)
		svc := NewService(jobs, nil, nil, &fakeRecommender{err: errors.New("db timeout")}, Options{MaxRetries: 2})

		err := svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: id})
		require.Error(t, err)
		assert.Equal(t, entity.JobStatusPending, jobs.jobs[id].Status)
		assert.Equal(t, 1, jobs.jobs[id].RetryCount)

		require.NoError(t, svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: id}))
		assert.Equal(t, entity.JobStatusFailed, jobs.jobs[id].Status)
		assert.Equal(t, "db timeout", jobs.jobs[id].ErrorMessage)
	})

	t.Run("terminal and unknown jobs are skipped", func(t *testing.T) {
		jobs := newFakeJobs()
		rec := &fakeRecommender{}
		svc := NewService(jobs, nil, nil, rec, Options{})
		require.NoError(t, svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: "nope"}))

		done := &entity.RecommendationJob{ID: "done", UserID: "u-1", Status: entity.JobStatusCompleted}
		require.NoError(t, jobs.Create(context.Background(), done))
		require.NoError(t, svc.Process(context.Background(), &messaging.RecommendationJobMessage{JobID: "done"}))
		assert.Empty(t, rec.requester.UserID)
	})
}
