package tickets

import (
	"context"
	"fmt"
	"strconv"

	"ticketly/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// ProgressStore tracks per-job progress in Redis so clients can poll
// while the worker grinds through seats. Entries expire with the job
// retention window.
type ProgressStore interface {
	Init(ctx context.Context, jobID string, total int) error
	SetActive(ctx context.Context, jobID string) error
	Step(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error) error
	Get(ctx context.Context, jobID string) (*JobStatusResponse, error)
}

type redisProgressStore struct {
	redis *redis.Client
}

func NewProgressStore(redisClient *redis.Client) ProgressStore {
	return &redisProgressStore{redis: redisClient}
}

func (s *redisProgressStore) Init(ctx context.Context, jobID string, total int) error {
	key := constants.BuildTicketJobKey(jobID)
	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, "state", string(JobStateWaiting), "done", 0, "total", total)
	pipe.Expire(ctx, key, constants.TTL_JOB_STATUS)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisProgressStore) SetActive(ctx context.Context, jobID string) error {
	return s.redis.HSet(ctx, constants.BuildTicketJobKey(jobID), "state", string(JobStateActive)).Err()
}

func (s *redisProgressStore) Step(ctx context.Context, jobID string) error {
	return s.redis.HIncrBy(ctx, constants.BuildTicketJobKey(jobID), "done", 1).Err()
}

func (s *redisProgressStore) Complete(ctx context.Context, jobID string) error {
	return s.redis.HSet(ctx, constants.BuildTicketJobKey(jobID), "state", string(JobStateCompleted)).Err()
}

func (s *redisProgressStore) Fail(ctx context.Context, jobID string, cause error) error {
	return s.redis.HSet(ctx, constants.BuildTicketJobKey(jobID),
		"state", string(JobStateFailed), "error", cause.Error()).Err()
}

func (s *redisProgressStore) Get(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	fields, err := s.redis.HGetAll(ctx, constants.BuildTicketJobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job status: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	done, _ := strconv.Atoi(fields["done"])
	total, _ := strconv.Atoi(fields["total"])
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}

	return &JobStatusResponse{
		JobID:           jobID,
		State:           JobState(fields["state"]),
		ProgressPercent: percent,
		Error:           fields["error"],
	}, nil
}
