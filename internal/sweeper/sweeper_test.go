package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ticketly/internal/auth"
	"ticketly/internal/bookings"
	"ticketly/internal/idempotency"
	"ticketly/internal/seats"
	"ticketly/internal/shared/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepSeatService struct {
	seats.Service
	calls atomic.Int32
}

func (s *sweepSeatService) SweepExpiredLocks(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 2, nil
}

type sweepBookingService struct {
	bookings.Service
	calls atomic.Int32
}

func (s *sweepBookingService) SweepExpired(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 1, nil
}

type sweepTokenRepo struct {
	auth.Repository
	calls atomic.Int32
}

func (r *sweepTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.calls.Add(1)
	return 3, nil
}

type sweepIdemService struct {
	idempotency.Service
	calls atomic.Int32
}

func (s *sweepIdemService) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.calls.Add(1)
	return 4, nil
}

func TestClampInterval(t *testing.T) {
	assert.Equal(t, minInterval, clampInterval(0))
	assert.Equal(t, minInterval, clampInterval(time.Second))
	assert.Equal(t, 5*time.Minute, clampInterval(5*time.Minute))
}

func TestSweepPassesRunEachConcern(t *testing.T) {
	seatSvc := &sweepSeatService{}
	bookingSvc := &sweepBookingService{}
	tokenRepo := &sweepTokenRepo{}
	idemSvc := &sweepIdemService{}

	s := New(seatSvc, bookingSvc, tokenRepo, idemSvc, &config.Config{})

	ctx := context.Background()
	s.sweepLocks(ctx)
	s.sweepBookings(ctx)
	s.sweepTokens(ctx)

	assert.Equal(t, int32(1), seatSvc.calls.Load())
	assert.Equal(t, int32(1), bookingSvc.calls.Load())
	assert.Equal(t, int32(1), tokenRepo.calls.Load())
	assert.Equal(t, int32(1), idemSvc.calls.Load())
}

func TestStopWaitsForLoops(t *testing.T) {
	s := New(&sweepSeatService{}, &sweepBookingService{}, &sweepTokenRepo{}, &sweepIdemService{}, &config.Config{
		Sweeper: config.SweeperConfig{
			LockInterval:    time.Hour,
			BookingInterval: time.Hour,
			TokenInterval:   time.Hour,
		},
	})

	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	require.NotNil(t, s.cancel)
}
