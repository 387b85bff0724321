package sweeper

import (
	"context"
	"sync"
	"time"

	"ticketly/internal/auth"
	"ticketly/internal/bookings"
	"ticketly/internal/idempotency"
	"ticketly/internal/seats"
	"ticketly/internal/shared/config"
	"ticketly/pkg/logger"
)

// minInterval floors every cadence; the sweeps hold row locks and must
// not pile up on an overloaded cluster.
const minInterval = 30 * time.Second

// runTimeout bounds one sweep pass.
const runTimeout = 2 * time.Minute

// Sweeper owns the periodic maintenance loops: expired seat locks,
// expired pending bookings, and expired token/idempotency rows. Each
// loop runs with concurrency one.
type Sweeper struct {
	seats       seats.Service
	bookings    bookings.Service
	tokens      auth.Repository
	idempotency idempotency.Service
	cfg         *config.Config
	logger      *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(seatService seats.Service, bookingService bookings.Service, tokenRepo auth.Repository, idemService idempotency.Service, cfg *config.Config) *Sweeper {
	return &Sweeper{
		seats:       seatService,
		bookings:    bookingService,
		tokens:      tokenRepo,
		idempotency: idemService,
		cfg:         cfg,
		logger:      logger.GetDefault(),
	}
}

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	return d
}

func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loop(runCtx, clampInterval(s.cfg.Sweeper.LockInterval), s.sweepLocks)
	s.loop(runCtx, clampInterval(s.cfg.Sweeper.BookingInterval), s.sweepBookings)
	s.loop(runCtx, clampInterval(s.cfg.Sweeper.TokenInterval), s.sweepTokens)

	s.logger.InfoWithContext(ctx, "sweeper started", map[string]interface{}{
		"lock_interval":    clampInterval(s.cfg.Sweeper.LockInterval).String(),
		"booking_interval": clampInterval(s.cfg.Sweeper.BookingInterval).String(),
		"token_interval":   clampInterval(s.cfg.Sweeper.TokenInterval).String(),
	})
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, runTimeout)
				run(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) sweepLocks(ctx context.Context) {
	if _, err := s.seats.SweepExpiredLocks(ctx); err != nil {
		s.logger.ErrorWithContext(ctx, "seat lock sweep failed", err, nil)
	}
}

func (s *Sweeper) sweepBookings(ctx context.Context) {
	if _, err := s.bookings.SweepExpired(ctx); err != nil {
		s.logger.ErrorWithContext(ctx, "booking expiry sweep failed", err, nil)
	}
}

func (s *Sweeper) sweepTokens(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	tokens, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "token sweep failed", err, nil)
	}
	keys, err := s.idempotency.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "idempotency sweep failed", err, nil)
	}

	s.logger.LogSweepCompleted(ctx, "tokens", int(tokens+keys), time.Since(start))
}
