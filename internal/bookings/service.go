package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ticketly/internal/events"
	"ticketly/internal/idempotency"
	"ticketly/internal/seats"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/constants"
	"ticketly/internal/users"
	"ticketly/pkg/cache"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
)

// TicketDispatcher enqueues asynchronous ticket generation after a
// booking is confirmed. Implemented by the tickets package; returns the
// job id, or an empty id when generation ran inline as a fallback.
type TicketDispatcher interface {
	DispatchGeneration(ctx context.Context, booking *Booking) (string, error)
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, req *CreateBookingRequest) (*Booking, error)
	// Confirm transitions pending to confirmed on payment evidence. It
	// is reached through the webhook path only, never a public route.
	Confirm(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string) (*ConfirmResult, error)
	Cancel(ctx context.Context, userID, bookingID uuid.UUID, reason, idempotencyKey string) (*CancelResult, error)

	GetBooking(ctx context.Context, bookingID, userID uuid.UUID, role string) (*Booking, error)
	GetByReference(ctx context.Context, reference string, userID uuid.UUID, role string) (*Booking, error)
	ListMyBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error)

	// MarkPaymentFailed records a failed charge reported by the
	// provider without releasing seats; the sweeper or the user decides
	// what happens next.
	MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error

	// SweepExpired cancels pending bookings whose payment window has
	// elapsed. Returns the number of bookings expired.
	SweepExpired(ctx context.Context) (int, error)
}

type service struct {
	repo         Repository
	idempotency  idempotency.Service
	availability seats.Availability
	locks        seats.LockStore
	events       events.Reader
	cache        cache.Service
	publisher    bus.Publisher
	dispatcher   TicketDispatcher
	cfg          *config.Config
	logger       *logger.Logger
}

func NewService(
	repo Repository,
	idempotencySvc idempotency.Service,
	availability seats.Availability,
	locks seats.LockStore,
	eventsReader events.Reader,
	cacheSvc cache.Service,
	publisher bus.Publisher,
	dispatcher TicketDispatcher,
	cfg *config.Config,
) Service {
	return &service{
		repo:         repo,
		idempotency:  idempotencySvc,
		availability: availability,
		locks:        locks,
		events:       eventsReader,
		cache:        cacheSvc,
		publisher:    publisher,
		dispatcher:   dispatcher,
		cfg:          cfg,
		logger:       logger.GetDefault(),
	}
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, req *CreateBookingRequest) (*Booking, error) {
	selections, err := normalizeSelections(req.Seats)
	if err != nil {
		return nil, err
	}

	event, err := s.events.GetEventRecord(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsOpenForBooking(time.Now().UTC()) {
		return nil, apperrors.New(apperrors.KindConflict, "event is not open for booking")
	}

	expiresAt := time.Now().UTC().Add(s.cfg.Booking.PaymentWindow)
	booking, err := s.repo.CreateBooking(ctx, userID, req.EventID, selections, expiresAt)
	if err != nil {
		return nil, mapBookingError(err)
	}

	s.logger.LogBookingCreated(ctx, booking.ID.String(), booking.Reference, userID.String())
	return booking, nil
}

func (s *service) Confirm(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string) (*ConfirmResult, error) {
	now := time.Now().UTC()
	booking, alreadyConfirmed, err := s.repo.ConfirmBooking(ctx, bookingID, paymentID, gateway, now)
	if err != nil {
		return nil, mapBookingError(err)
	}
	if alreadyConfirmed {
		return &ConfirmResult{Booking: booking}, nil
	}

	s.logger.LogBookingConfirmed(ctx, booking.ID.String(), paymentID)

	// Post-commit work: nothing here may undo the confirmation
	jobID, dispatchErr := s.dispatcher.DispatchGeneration(ctx, booking)
	if dispatchErr != nil {
		s.logger.ErrorWithContext(ctx, "ticket generation dispatch failed", dispatchErr,
			map[string]interface{}{"booking_id": booking.ID.String()})
	}

	go s.afterConfirm(booking)

	return &ConfirmResult{Booking: booking, TicketJobID: jobID}, nil
}

func (s *service) afterConfirm(booking *Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seen := make(map[uuid.UUID]bool)
	for _, bs := range booking.Seats {
		if !seen[bs.SeatTypeID] {
			seen[bs.SeatTypeID] = true
			s.availability.InvalidateType(ctx, booking.EventID, bs.SeatTypeID)
		}
		s.publisher.Publish(ctx, bus.Event{
			Type: bus.EventSeatBooked,
			Payload: map[string]interface{}{
				"event_id":     booking.EventID.String(),
				"seat_type_id": bs.SeatTypeID.String(),
				"seat_label":   bs.SeatLabel,
				"booking_id":   booking.ID.String(),
			},
		})
	}
	s.invalidateEventDetail(ctx, booking.EventID)

	s.publisher.Publish(ctx, bus.Event{
		Type: bus.EventBookingConfirmed,
		Payload: map[string]interface{}{
			"booking_id":        booking.ID.String(),
			"booking_reference": booking.Reference,
			"event_id":          booking.EventID.String(),
			"user_id":           booking.UserID.String(),
		},
	})
}

func (s *service) Cancel(ctx context.Context, userID, bookingID uuid.UUID, reason, idempotencyKey string) (*CancelResult, error) {
	outcome, err := s.idempotency.Begin(ctx, idempotencyKey, "booking_cancel", bookingID.String(), userID)
	if err != nil {
		return nil, err
	}
	if !outcome.Proceed {
		var cached CancelResult
		if unmarshalErr := json.Unmarshal(outcome.Snapshot, &cached); unmarshalErr != nil {
			return nil, apperrors.Wrap(unmarshalErr, apperrors.KindInternal, "failed to decode cached cancellation")
		}
		return &cached, nil
	}

	result, err := s.cancel(ctx, userID, bookingID, reason)
	if err != nil {
		if failErr := s.idempotency.Fail(ctx, idempotencyKey); failErr != nil {
			s.logger.DebugWithContext(ctx, "idempotency fail update failed",
				map[string]interface{}{"key": idempotencyKey, "error": failErr.Error()})
		}
		return nil, err
	}

	if completeErr := s.idempotency.Complete(ctx, idempotencyKey, result); completeErr != nil {
		s.logger.DebugWithContext(ctx, "idempotency complete update failed",
			map[string]interface{}{"key": idempotencyKey, "error": completeErr.Error()})
	}
	return result, nil
}

func (s *service) cancel(ctx context.Context, userID, bookingID uuid.UUID, reason string) (*CancelResult, error) {
	outcome, err := s.repo.CancelBooking(ctx, bookingID, userID, reason, time.Now().UTC())
	if err != nil {
		return nil, mapBookingError(err)
	}

	booking := outcome.Booking
	result := &CancelResult{
		BookingID:     booking.ID,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
	}
	if outcome.AlreadyCancelled {
		return result, nil
	}
	for _, k := range outcome.RestoredByType {
		result.SeatsReleased += k
	}

	s.logger.LogBookingCancelled(ctx, booking.ID.String(), reason)

	go s.afterCancel(booking, outcome)

	return result, nil
}

func (s *service) afterCancel(booking *Booking, outcome *CancelOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for seatTypeID, k := range outcome.RestoredByType {
		s.availability.Increment(ctx, booking.EventID, seatTypeID, k)
	}
	s.invalidateEventDetail(ctx, booking.EventID)

	holder := booking.UserID.String()
	for _, bs := range outcome.ReleasedSeats {
		if _, err := s.locks.Release(ctx, booking.EventID.String(), bs.SeatTypeID.String(), bs.SeatLabel, holder); err != nil {
			s.logger.DebugWithContext(ctx, "seat lock kv cleanup failed",
				map[string]interface{}{"seat_label": bs.SeatLabel, "error": err.Error()})
		}
		s.publisher.Publish(ctx, bus.Event{
			Type: bus.EventSeatReleased,
			Payload: map[string]interface{}{
				"event_id":     booking.EventID.String(),
				"seat_type_id": bs.SeatTypeID.String(),
				"seat_label":   bs.SeatLabel,
			},
		})
	}

	s.publisher.Publish(ctx, bus.Event{
		Type: bus.EventBookingExpired,
		Payload: map[string]interface{}{
			"booking_id":        booking.ID.String(),
			"booking_reference": booking.Reference,
			"event_id":          booking.EventID.String(),
			"status":            string(booking.Status),
		},
	})
}

func (s *service) GetBooking(ctx context.Context, bookingID, userID uuid.UUID, role string) (*Booking, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, mapBookingError(err)
	}
	if err := authorizeBookingRead(booking, userID, role); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) GetByReference(ctx context.Context, reference string, userID uuid.UUID, role string) (*Booking, error) {
	booking, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, mapBookingError(err)
	}
	if err := authorizeBookingRead(booking, userID, role); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) ListMyBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error) {
	page, err := s.repo.ListByUser(ctx, userID, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to list bookings")
	}
	return page, nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	if err := s.repo.MarkPaymentFailed(ctx, bookingID); err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to record payment failure")
	}
	return nil
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpiredPending(ctx, time.Now().UTC(), s.cfg.Sweeper.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		_, err := s.cancel(ctx, uuid.Nil, id, "payment window elapsed")
		if err != nil {
			// Skip bookings another replica is already handling
			if apperrors.KindOf(err) == apperrors.KindInFlight {
				continue
			}
			s.logger.ErrorWithContext(ctx, "expired booking sweep failed", err,
				map[string]interface{}{"booking_id": id.String()})
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *service) invalidateEventDetail(ctx context.Context, eventID uuid.UUID) {
	key := constants.BuildEventDetailKey(eventID.String())
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.DebugWithContext(ctx, "event cache invalidation failed",
			map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func normalizeSelections(raw []SeatSelection) ([]SeatSelection, error) {
	selections := make([]SeatSelection, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, sel := range raw {
		label, err := seats.NormalizeSeatLabel(sel.SeatLabel)
		if err != nil {
			return nil, err
		}
		key := sel.SeatTypeID.String() + ":" + label
		if seen[key] {
			return nil, apperrors.Newf(apperrors.KindValidation, "seat %s requested twice", label)
		}
		seen[key] = true
		selections[i] = SeatSelection{SeatLabel: label, SeatTypeID: sel.SeatTypeID}
	}
	return selections, nil
}

func authorizeBookingRead(booking *Booking, userID uuid.UUID, role string) error {
	if booking.UserID == userID || role == string(users.RoleAdmin) {
		return nil
	}
	return apperrors.New(apperrors.KindNotFound, "booking not found")
}

func mapBookingError(err error) error {
	switch {
	case errors.Is(err, ErrBookingNotFound):
		return apperrors.New(apperrors.KindNotFound, "booking not found")
	case errors.Is(err, ErrStaleLocks):
		return apperrors.New(apperrors.KindStale, "seat locks are stale or not held; re-lock and retry")
	case errors.Is(err, ErrAlreadyBooked):
		return apperrors.New(apperrors.KindConflict, "one or more seats already belong to a booking")
	case errors.Is(err, ErrBookingExpired):
		return apperrors.New(apperrors.KindStale, "booking has expired")
	case errors.Is(err, ErrNotPending):
		return apperrors.New(apperrors.KindConflict, "booking is not pending")
	case errors.Is(err, ErrSeatsNotLocked):
		return apperrors.New(apperrors.KindStale, "booked seats are no longer locked")
	case errors.Is(err, ErrConfirmRace):
		return apperrors.New(apperrors.KindConflict, "booking was confirmed by a concurrent request")
	case errors.Is(err, ErrBookingInFlight):
		return apperrors.New(apperrors.KindInFlight, "booking is being modified by another request")
	case errors.Is(err, ErrAlreadyConfirmed):
		return apperrors.New(apperrors.KindConflict, "confirmed bookings must be refunded, not cancelled")
	case errors.Is(err, ErrNotOwner):
		return apperrors.New(apperrors.KindNotFound, "booking not found")
	case errors.Is(err, ErrReferenceExhausted):
		return apperrors.Wrap(err, apperrors.KindInternal, "could not allocate a booking reference")
	default:
		return apperrors.Wrap(err, apperrors.KindInternal, "booking operation failed")
	}
}
