// Package recommendation 导师推荐异步任务：入队、状态查询与 worker 执行
package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/infrastructure/messaging"
	"scholar-match-api/pkg/logger"
)

const (
	DefaultMaxMatches = 50
	DefaultMaxRetries = 3
	maxQueryLength    = 200
)

var (
	ErrNotStudent    = errors.New("only students can request supervisor recommendations")
	ErrJobNotFound   = errors.New("recommendation job not found")
	ErrQueryTooLong  = errors.New("recommendation query is too long")
	ErrEnqueueFailed = errors.New("failed to enqueue recommendation job")
)

// Publisher 推荐任务投递
type Publisher interface {
	PublishRecommendationJob(ctx context.Context, job *messaging.RecommendationJobMessage) (string, error)
}

// Recommender 执行推荐计算
type Recommender interface {
	Recommend(ctx context.Context, requester entity.Requester, query string, limit int, progress func(int)) (*matching.Recommendation, error)
}

// Options 推荐任务参数
type Options struct {
	MaxMatches int
	MaxRetries int
}

// Service 推荐任务服务
type Service struct {
	jobs        repository.JobRepository
	tx          repository.Transactor
	publisher   Publisher
	recommender Recommender
	opts        Options
}

// NewService 创建推荐任务服务。API 侧 recommender 可为 nil，worker 侧 publisher 可为 nil。
func NewService(jobs repository.JobRepository, tx repository.Transactor, publisher Publisher, recommender Recommender, opts Options) *Service {
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = DefaultMaxMatches
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Service{
		jobs:        jobs,
		tx:          tx,
		publisher:   publisher,
		recommender: recommender,
		opts:        opts,
	}
}

// Enqueue 创建并投递推荐任务。用户已有未结束任务时直接返回该任务，created 为 false。
func (s *Service) Enqueue(ctx context.Context, requester entity.Requester, query string) (job *entity.RecommendationJob, created bool, err error) {
	if !requester.Role.IsStudent() || requester.UserID == "" {
		return nil, false, ErrNotStudent
	}
	query = strings.TrimSpace(query)
	if len([]rune(query)) > maxQueryLength {
		return nil, false, ErrQueryTooLong
	}

	err = s.withTx(ctx, func(txCtx context.Context) error {
		if err := s.jobs.LockUser(txCtx, requester.UserID); err != nil {
			return fmt.Errorf("lock user jobs: %w", err)
		}
		active, err := s.jobs.FindActiveByUser(txCtx, requester.UserID)
		if err != nil {
			return fmt.Errorf("find active job: %w", err)
		}
		if active != nil {
			job = active
			return nil
		}
		job = entity.NewRecommendationJob(requester, query)
		job.ID = uuid.NewString()
		if err := s.jobs.Create(txCtx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		created = true
		return nil
	})
	if errors.Is(err, repository.ErrActiveJobExists) {
		// 并发请求先一步创建了任务
		active, ferr := s.jobs.FindActiveByUser(ctx, requester.UserID)
		if ferr == nil && active != nil {
			return active, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	if _, err := s.publisher.PublishRecommendationJob(ctx, &messaging.RecommendationJobMessage{
		JobID:     job.ID,
		UserID:    job.UserID,
		Role:      string(job.Role),
		ProfileID: job.ProfileID,
		Query:     job.Query,
	}); err != nil {
		logger.Error(ctx, "failed to publish recommendation job", err)
		job.Fail("enqueue failed")
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			logger.Error(ctx, "failed to mark unpublished job as failed", uerr)
		}
		return nil, false, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}
	logger.Info(ctx, "recommendation job enqueued")
	return job, true, nil
}

// Status 查询任务，只有任务所有者可见
func (s *Service) Status(ctx context.Context, requester entity.Requester, jobID string) (*entity.RecommendationJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil || !job.OwnedBy(requester.UserID) {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List 分页列出请求者自己的任务
func (s *Service) List(ctx context.Context, requester entity.Requester, p repository.Pagination) (*repository.PagedResult[*entity.RecommendationJob], error) {
	if requester.UserID == "" {
		return repository.NewPagedResult([]*entity.RecommendationJob{}, 0, p), nil
	}
	return s.jobs.ListByUser(ctx, requester.UserID, p)
}

// Process worker 执行推荐任务。返回错误时消息保留待重试。
func (s *Service) Process(ctx context.Context, msg *messaging.RecommendationJobMessage) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.JobID)
	job, err := s.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		logger.Warn(ctx, "recommendation job no longer exists, dropping message")
		return nil
	}
	if job.Status.Terminal() {
		return nil
	}

	job.Start()
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	requester := entity.Requester{UserID: job.UserID, Role: job.Role, ProfileID: job.ProfileID}
	rec, err := s.recommender.Recommend(ctx, requester, job.Query, s.opts.MaxMatches, func(p int) {
		if perr := s.jobs.UpdateProgress(ctx, job.ID, p); perr != nil {
			logger.Warn(ctx, "update job progress failed", "progress", p, "error", perr.Error())
		}
	})
	if err != nil {
		return s.handleFailure(ctx, job, err)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return s.finishFailed(ctx, job, fmt.Sprintf("encode result: %v", err))
	}
	job.Complete(body)
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	logger.Info(ctx, "recommendation job completed", "total", rec.Total, "duration_ms", job.DurationMs)
	return nil
}

func (s *Service) handleFailure(ctx context.Context, job *entity.RecommendationJob, cause error) error {
	if errors.Is(cause, matching.ErrProfileNotFound) {
		return s.finishFailed(ctx, job, "Complete your research profile before requesting recommendations.")
	}
	if job.RetryCount+1 >= s.opts.MaxRetries {
		return s.finishFailed(ctx, job, cause.Error())
	}
	job.Retry()
	if err := s.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to requeue recommendation job", err)
	}
	logger.Warn(ctx, "recommendation job failed, will retry", "retry_count", job.RetryCount, "error", cause.Error())
	return cause
}

func (s *Service) finishFailed(ctx context.Context, job *entity.RecommendationJob, reason string) error {
	job.Fail(reason)
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	logger.Warn(ctx, "recommendation job failed", "reason", reason)
	return nil
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTransaction(ctx, fn)
}

// HandleMessage 适配消息消费者
func (s *Service) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.RecommendationJobMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		logger.Warn(ctx, "malformed recommendation message, dropping", "message_id", msg.ID, "error", err.Error())
		return nil
	}
	return s.Process(ctx, &payload)
}
