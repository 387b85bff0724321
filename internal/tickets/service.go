package tickets

import (
	"context"
	"errors"
	"time"

	"ticketly/internal/bookings"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/users"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	bookings.TicketDispatcher
	GetTickets(ctx context.Context, bookingID, userID uuid.UUID, role string) (*TicketsResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error)
}

type service struct {
	repo        Repository
	bookingRepo bookings.Repository
	userRepo    users.Repository
	progress    ProgressStore
	producer    Producer
	worker      *Worker
	logger      *logger.Logger
}

// NewService wires the dispatcher. producer may be nil when Kafka is
// unavailable; dispatch then degrades to inline generation.
func NewService(repo Repository, bookingRepo bookings.Repository, userRepo users.Repository, progress ProgressStore, producer Producer, worker *Worker) Service {
	return &service{
		repo:        repo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		progress:    progress,
		producer:    producer,
		worker:      worker,
		logger:      logger.GetDefault(),
	}
}

// DispatchGeneration enqueues the generation job for a freshly
// confirmed booking. When the broker is down the job runs inline and
// an empty job id is returned; the booking confirmation never fails
// because of ticketing.
func (s *service) DispatchGeneration(ctx context.Context, booking *bookings.Booking) (string, error) {
	job := s.buildJob(ctx, booking)

	if err := s.progress.Init(ctx, job.ID, len(job.Seats)); err != nil {
		s.logger.DebugWithContext(ctx, "failed to init job progress", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}

	if s.producer != nil {
		err := s.producer.Enqueue(ctx, job)
		if err == nil {
			return job.ID, nil
		}
		s.logger.ErrorWithContext(ctx, "ticket enqueue failed, generating inline", err, map[string]interface{}{
			"job_id":      job.ID,
			"booking_ref": job.BookingRef,
		})
	}

	if err := s.worker.HandleJob(ctx, job); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "inline ticket generation failed")
	}
	return "", nil
}

func (s *service) buildJob(ctx context.Context, booking *bookings.Booking) *Job {
	seats := make([]JobSeat, 0, len(booking.Seats))
	for _, seat := range booking.Seats {
		seats = append(seats, JobSeat{
			SeatID:     seat.SeatID,
			SeatTypeID: seat.SeatTypeID,
			SeatLabel:  seat.SeatLabel,
		})
	}

	job := &Job{
		ID:         uuid.New().String(),
		Kind:       JobGenerateTickets,
		BookingID:  booking.ID,
		BookingRef: booking.Reference,
		EventID:    booking.EventID,
		UserID:     booking.UserID,
		Seats:      seats,
		CreatedAt:  time.Now(),
	}

	// Contact details ride in the payload so delivery workers never
	// join back to the users table. Missing contact just skips delivery.
	user, err := s.userRepo.GetByID(ctx, booking.UserID)
	if err != nil {
		s.logger.DebugWithContext(ctx, "contact lookup failed for ticket job", map[string]interface{}{
			"booking_id": booking.ID.String(),
			"error":      err.Error(),
		})
		return job
	}
	job.Email = user.Email
	job.Phone = user.Phone
	return job
}

func (s *service) GetTickets(ctx context.Context, bookingID, userID uuid.UUID, role string) (*TicketsResponse, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookings.ErrBookingNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
		}
		return nil, apperrors.Internal(err)
	}
	// Non-owners get not-found, not forbidden; booking ids stay opaque.
	if booking.UserID != userID && role != string(users.RoleAdmin) {
		return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
	}

	tickets, err := s.repo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &TicketsResponse{
		BookingID:       bookingID,
		Tickets:         tickets,
		AggregateStatus: Aggregate(tickets),
	}, nil
}

func (s *service) GetJobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	status, err := s.progress.Get(ctx, jobID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if status == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "job not found")
	}
	return status, nil
}
