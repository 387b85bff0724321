package seats

import (
	"context"
	"errors"
	"time"

	"ticketly/internal/events"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/constants"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	// Acquire places a soft lock on a seat label: Redis first for the
	// fast conflict answer, then Postgres as the durable arbiter.
	Acquire(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string) (*LockResponse, error)
	// Release gives a lock back. Only the holder can release.
	Release(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string) error
	// Extend pushes the lock deadline forward by additionalSeconds.
	Extend(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string, additionalSeconds int) (*Lock, error)

	GetLock(ctx context.Context, eventID, seatTypeID uuid.UUID, rawLabel string) (*Lock, error)
	BatchGetSeats(ctx context.Context, seatTypeID uuid.UUID, rawLabels []string) ([]Seat, error)
	ListMyLocks(ctx context.Context, eventID, userID uuid.UUID) ([]Seat, error)
	GetAvailability(ctx context.Context, eventID, seatTypeID uuid.UUID) (int, error)

	// SweepExpiredLocks removes lock rows past their deadline and
	// restores availability. Returns the number of rows swept.
	SweepExpiredLocks(ctx context.Context) (int, error)
}

type service struct {
	repo         Repository
	locks        LockStore
	availability Availability
	events       events.Reader
	publisher    bus.Publisher
	logger       *logger.Logger
}

func NewService(repo Repository, locks LockStore, availability Availability, eventsReader events.Reader, publisher bus.Publisher) Service {
	return &service{
		repo:         repo,
		locks:        locks,
		availability: availability,
		events:       eventsReader,
		publisher:    publisher,
		logger:       logger.GetDefault(),
	}
}

func (s *service) Acquire(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string) (*LockResponse, error) {
	label, err := NormalizeSeatLabel(rawLabel)
	if err != nil {
		return nil, err
	}

	seatType, err := s.checkBookable(ctx, eventID, seatTypeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lock := &Lock{
		EventID:    eventID.String(),
		SeatTypeID: seatTypeID.String(),
		SeatLabel:  label,
		UserID:     userID.String(),
		LockedAt:   now,
		ExpiresAt:  now.Add(constants.TTL_SEAT_LOCK),
	}

	acquired, err := s.locks.Acquire(ctx, lock.EventID, lock.SeatTypeID, label, lock, constants.TTL_SEAT_LOCK)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to acquire seat lock")
	}
	if !acquired {
		return nil, apperrors.Newf(apperrors.KindConflict, "seat %s is already locked", label)
	}

	seat := &Seat{
		EventID:     eventID,
		SeatTypeID:  seatTypeID,
		SeatLabel:   label,
		Status:      SeatStatusLocked,
		OwnerUserID: userID,
		LockedAt:    now,
		ExpiresAt:   lock.ExpiresAt,
	}

	if err := s.repo.PersistLock(ctx, seat); err != nil {
		// The Redis lock must not outlive a failed insert, otherwise
		// the label stays blocked with no row behind it.
		s.compensateLock(lock.EventID, lock.SeatTypeID, label, lock.UserID)

		switch {
		case errors.Is(err, ErrSeatTaken):
			return nil, apperrors.Newf(apperrors.KindConflict, "seat %s is already taken", label)
		case errors.Is(err, ErrNoAvailability):
			return nil, apperrors.Newf(apperrors.KindConflict, "no seats available for this seat type")
		default:
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to persist seat lock")
		}
	}

	s.logger.LogSeatLocked(ctx, lock.EventID, label, lock.UserID)

	available := seatType.AvailableQuantity - 1
	if available < 0 {
		available = 0
	}

	go func() {
		bgCtx := bus.Detach(ctx)
		s.availability.Decrement(bgCtx, eventID, seatTypeID)
		s.publisher.Publish(bgCtx, bus.Event{
			Type: bus.EventSeatLocked,
			Payload: map[string]interface{}{
				"event_id":           lock.EventID,
				"seat_type_id":       lock.SeatTypeID,
				"seat_label":         label,
				"expires_at":         lock.ExpiresAt,
				"available_quantity": available,
			},
		})
	}()

	return &LockResponse{Lock: lock, AvailableQuantity: available}, nil
}

func (s *service) Release(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string) error {
	label, err := NormalizeSeatLabel(rawLabel)
	if err != nil {
		return err
	}

	released, err := s.repo.ReleaseOwned(ctx, eventID, seatTypeID, label, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to release seat")
	}

	// Redis cleanup is holder-guarded; a stale key left behind would
	// otherwise block the label until its TTL fires.
	kvReleased, kvErr := s.locks.Release(ctx, eventID.String(), seatTypeID.String(), label, userID.String())
	if kvErr != nil {
		s.logger.DebugWithContext(ctx, "seat lock kv release failed",
			map[string]interface{}{"seat_label": label, "error": kvErr.Error()})
	}

	if !released && !kvReleased {
		return apperrors.Newf(apperrors.KindNotFound, "no lock held on seat %s", label)
	}

	s.logger.LogSeatReleased(ctx, eventID.String(), label, userID.String())

	go func() {
		bgCtx := bus.Detach(ctx)
		s.availability.InvalidateType(bgCtx, eventID, seatTypeID)
		s.publisher.Publish(bgCtx, bus.Event{
			Type: bus.EventSeatReleased,
			Payload: map[string]interface{}{
				"event_id":     eventID.String(),
				"seat_type_id": seatTypeID.String(),
				"seat_label":   label,
			},
		})
	}()

	return nil
}

func (s *service) Extend(ctx context.Context, userID, eventID, seatTypeID uuid.UUID, rawLabel string, additionalSeconds int) (*Lock, error) {
	label, err := NormalizeSeatLabel(rawLabel)
	if err != nil {
		return nil, err
	}
	if additionalSeconds < 1 || additionalSeconds > 3600 {
		return nil, apperrors.New(apperrors.KindValidation, "additional_seconds must be between 1 and 3600")
	}

	seat, err := s.repo.GetByLabel(ctx, seatTypeID, label)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load seat")
	}
	now := time.Now().UTC()
	if seat == nil || seat.Status != SeatStatusLocked || seat.OwnerUserID != userID || !seat.ExpiresAt.After(now) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no active lock held on seat %s", label)
	}

	newExpiresAt := seat.ExpiresAt.Add(time.Duration(additionalSeconds) * time.Second)

	extended, err := s.repo.ExtendOwned(ctx, seatTypeID, label, userID, newExpiresAt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to extend seat lock")
	}
	if !extended {
		return nil, apperrors.Newf(apperrors.KindStale, "lock on seat %s changed, extension refused", label)
	}

	if _, kvErr := s.locks.Extend(ctx, eventID.String(), seatTypeID.String(), label, userID.String(), newExpiresAt); kvErr != nil {
		s.logger.DebugWithContext(ctx, "seat lock kv extend failed",
			map[string]interface{}{"seat_label": label, "error": kvErr.Error()})
	}

	return &Lock{
		EventID:    eventID.String(),
		SeatTypeID: seatTypeID.String(),
		SeatLabel:  label,
		UserID:     userID.String(),
		LockedAt:   seat.LockedAt,
		ExpiresAt:  newExpiresAt,
	}, nil
}

func (s *service) GetLock(ctx context.Context, eventID, seatTypeID uuid.UUID, rawLabel string) (*Lock, error) {
	label, err := NormalizeSeatLabel(rawLabel)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.Get(ctx, eventID.String(), seatTypeID.String(), label)
	if err == nil && lock != nil {
		return lock, nil
	}
	if err != nil {
		s.logger.DebugWithContext(ctx, "seat lock kv read failed",
			map[string]interface{}{"seat_label": label, "error": err.Error()})
	}

	// Redis missed or is down; answer from the durable row
	seat, dbErr := s.repo.GetByLabel(ctx, seatTypeID, label)
	if dbErr != nil {
		return nil, apperrors.Wrap(dbErr, apperrors.KindInternal, "failed to load seat")
	}
	if seat == nil || seat.Status != SeatStatusLocked || !seat.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	return &Lock{
		EventID:    eventID.String(),
		SeatTypeID: seatTypeID.String(),
		SeatLabel:  label,
		UserID:     seat.OwnerUserID.String(),
		LockedAt:   seat.LockedAt,
		ExpiresAt:  seat.ExpiresAt,
	}, nil
}

func (s *service) BatchGetSeats(ctx context.Context, seatTypeID uuid.UUID, rawLabels []string) ([]Seat, error) {
	labels := make([]string, 0, len(rawLabels))
	for _, raw := range rawLabels {
		label, err := NormalizeSeatLabel(raw)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	seats, err := s.repo.BatchGetByLabels(ctx, seatTypeID, labels)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load seats")
	}
	return seats, nil
}

func (s *service) ListMyLocks(ctx context.Context, eventID, userID uuid.UUID) ([]Seat, error) {
	seats, err := s.repo.ListLockedByUser(ctx, eventID, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to list locks")
	}
	return seats, nil
}

func (s *service) GetAvailability(ctx context.Context, eventID, seatTypeID uuid.UUID) (int, error) {
	if _, err := s.checkSeatType(ctx, eventID, seatTypeID); err != nil {
		return 0, err
	}
	count, err := s.availability.Get(ctx, eventID, seatTypeID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindInternal, "failed to read availability")
	}
	return count, nil
}

func (s *service) SweepExpiredLocks(ctx context.Context) (int, error) {
	start := time.Now()
	counts, err := s.repo.DeleteExpiredLocks(ctx, start.UTC())
	if err != nil {
		return 0, err
	}

	total := 0
	for seatTypeID, k := range counts {
		total += k
		if err := s.repo.RestoreAvailability(ctx, seatTypeID, k); err != nil {
			return total, err
		}
		if seatType, stErr := s.events.GetSeatTypeRecord(ctx, seatTypeID); stErr == nil {
			s.availability.InvalidateType(ctx, seatType.EventID, seatTypeID)
		}
	}

	if total > 0 {
		s.logger.LogSweepCompleted(ctx, "expired_seat_locks", total, time.Since(start))
	}
	return total, nil
}

// checkBookable loads the event and seat type and rejects locking when
// the event is not published or has already started.
func (s *service) checkBookable(ctx context.Context, eventID, seatTypeID uuid.UUID) (*events.SeatType, error) {
	event, err := s.events.GetEventRecord(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsOpenForBooking(time.Now().UTC()) {
		return nil, apperrors.New(apperrors.KindConflict, "event is not open for booking")
	}
	return s.checkSeatType(ctx, eventID, seatTypeID)
}

func (s *service) checkSeatType(ctx context.Context, eventID, seatTypeID uuid.UUID) (*events.SeatType, error) {
	seatType, err := s.events.GetSeatTypeRecord(ctx, seatTypeID)
	if err != nil {
		return nil, err
	}
	if seatType.EventID != eventID {
		return nil, apperrors.New(apperrors.KindNotFound, "seat type does not belong to this event")
	}
	return seatType, nil
}

// compensateLock removes the Redis entry after the durable insert
// failed. Holder-guarded, so a concurrent re-acquisition by another
// user is never clobbered.
func (s *service) compensateLock(eventID, seatTypeID, label, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.locks.Release(ctx, eventID, seatTypeID, label, userID); err != nil {
		s.logger.ErrorWithContext(ctx, "seat lock compensation failed", err,
			map[string]interface{}{"event_id": eventID, "seat_type_id": seatTypeID, "seat_label": label})
	}
}
