package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketly/internal/shared/apperrors"

	"github.com/google/uuid"
)

const keyTTL = 24 * time.Hour

// Outcome of Begin. Exactly one of the three holds: the caller owns the
// operation (Proceed), someone else is mid-flight, or it already
// finished and Snapshot replays the stored response.
type Outcome struct {
	Proceed  bool
	Snapshot []byte
}

// Service deduplicates mutating requests that carry a client key
type Service interface {
	// Begin claims the key for this operation. An empty key always
	// proceeds without dedup.
	Begin(ctx context.Context, key, operationType, resourceID string, userID uuid.UUID) (*Outcome, error)
	// Complete stores the response snapshot for replay
	Complete(ctx context.Context, key string, response interface{}) error
	// Fail marks the key failed so a later retry may run again
	Fail(ctx context.Context, key string) error
	// DeleteExpired removes keys past their 24h window
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Begin(ctx context.Context, key, operationType, resourceID string, userID uuid.UUID) (*Outcome, error) {
	if key == "" {
		return &Outcome{Proceed: true}, nil
	}

	won, err := s.repo.TryInsert(ctx, &Key{
		Key:           key,
		OperationType: operationType,
		ResourceID:    resourceID,
		UserID:        userID,
		Status:        StatusPending,
		ExpiresAt:     time.Now().UTC().Add(keyTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if won {
		return &Outcome{Proceed: true}, nil
	}

	record, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	switch record.Status {
	case StatusCompleted:
		return &Outcome{Snapshot: record.ResponseSnapshot}, nil
	case StatusFailed:
		// The earlier attempt failed; let this retry run. Reclaim by
		// flipping back to pending so concurrent retries still collide.
		if err := s.repo.UpdateStatus(ctx, key, StatusPending, nil); err != nil {
			return nil, fmt.Errorf("reclaim idempotency key: %w", err)
		}
		return &Outcome{Proceed: true}, nil
	default:
		return nil, apperrors.New(apperrors.KindInFlight, "another request with this key is in flight")
	}
}

func (s *service) Complete(ctx context.Context, key string, response interface{}) error {
	if key == "" {
		return nil
	}
	snapshot, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal response snapshot: %w", err)
	}
	return s.repo.UpdateStatus(ctx, key, StatusCompleted, snapshot)
}

func (s *service) Fail(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.repo.UpdateStatus(ctx, key, StatusFailed, nil)
}

func (s *service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}
