package tickets

import (
	"context"
	"fmt"
	"time"

	"ticketly/internal/shared/config"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
)

// Worker executes a single ticket job. The consumer and the inline
// dispatch fallback both funnel through HandleJob.
type Worker struct {
	repo     Repository
	progress ProgressStore
	email    EmailSender
	sms      SMSSender
	producer Producer
	cfg      *config.Config
	logger   *logger.Logger
}

func NewWorker(repo Repository, progress ProgressStore, email EmailSender, sms SMSSender, producer Producer, cfg *config.Config) *Worker {
	return &Worker{
		repo:     repo,
		progress: progress,
		email:    email,
		sms:      sms,
		producer: producer,
		cfg:      cfg,
		logger:   logger.GetDefault(),
	}
}

func (w *Worker) HandleJob(ctx context.Context, job *Job) error {
	switch job.Kind {
	case JobGenerateTickets:
		return w.generateTickets(ctx, job)
	case JobSendEmail:
		return w.sendEmail(ctx, job)
	case JobSendSMS:
		return w.sendSMS(ctx, job)
	default:
		// Unknown kinds are dropped, not retried; a newer producer may
		// be ahead of this worker's deploy.
		w.logger.ErrorWithContext(ctx, "unknown ticket job kind", nil, map[string]interface{}{
			"job_id": job.ID,
			"kind":   string(job.Kind),
		})
		return nil
	}
}

// generateTickets renders a QR ticket per seat and then chains the
// delivery jobs. Ticket ids are deterministic so reruns upsert the
// same rows instead of duplicating them.
func (w *Worker) generateTickets(ctx context.Context, job *Job) error {
	if err := w.progress.SetActive(ctx, job.ID); err != nil {
		w.logger.DebugWithContext(ctx, "failed to mark job active", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}

	for _, seat := range job.Seats {
		if err := w.generateOne(ctx, job, seat); err != nil {
			if failErr := w.progress.Fail(ctx, job.ID, err); failErr != nil {
				w.logger.DebugWithContext(ctx, "failed to record job failure", map[string]interface{}{
					"job_id": job.ID, "error": failErr.Error(),
				})
			}
			return err
		}
		if err := w.progress.Step(ctx, job.ID); err != nil {
			w.logger.DebugWithContext(ctx, "failed to step job progress", map[string]interface{}{
				"job_id": job.ID, "error": err.Error(),
			})
		}
	}

	if err := w.chainDelivery(ctx, job); err != nil {
		return err
	}

	if err := w.progress.Complete(ctx, job.ID); err != nil {
		w.logger.DebugWithContext(ctx, "failed to complete job progress", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}

	w.logger.InfoWithContext(ctx, "tickets generated", map[string]interface{}{
		"job_id":      job.ID,
		"booking_ref": job.BookingRef,
		"tickets":     len(job.Seats),
	})
	return nil
}

func (w *Worker) generateOne(ctx context.Context, job *Job, seat JobSeat) error {
	ticketID := BuildTicketID(job.BookingRef, seat.SeatLabel)

	payload, err := BuildQRPayload(ticketID, job.BookingRef, job.EventID, seat.SeatLabel)
	if err != nil {
		return err
	}
	image, err := GenerateQR(payload)
	if err != nil {
		return fmt.Errorf("generate qr for %s: %w", ticketID, err)
	}

	ticket := &Ticket{
		ID:         uuid.New(),
		TicketID:   ticketID,
		BookingID:  job.BookingID,
		EventID:    job.EventID,
		UserID:     job.UserID,
		SeatID:     seat.SeatID,
		SeatTypeID: seat.SeatTypeID,
		SeatLabel:  seat.SeatLabel,
		QRPayload:  payload,
		QRImage:    image,
		Status:     TicketStatusGenerated,
	}
	if err := w.repo.UpsertTicket(ctx, ticket); err != nil {
		return fmt.Errorf("persist ticket %s: %w", ticketID, err)
	}
	return nil
}

// chainDelivery enqueues the email and SMS jobs. Without a producer
// (inline fallback) they run in-process immediately.
func (w *Worker) chainDelivery(ctx context.Context, job *Job) error {
	var chained []*Job
	if w.cfg.EmailEnabled() && job.Email != "" {
		chained = append(chained, w.deliveryJob(job, JobSendEmail))
	}
	if w.cfg.SMSEnabled() && job.Phone != "" {
		chained = append(chained, w.deliveryJob(job, JobSendSMS))
	}

	for _, next := range chained {
		if w.producer != nil {
			err := w.producer.Enqueue(ctx, next)
			if err == nil {
				continue
			}
			w.logger.ErrorWithContext(ctx, "delivery job enqueue failed, running inline", err, map[string]interface{}{
				"job_id": next.ID, "kind": string(next.Kind),
			})
		}
		if err := w.HandleJob(ctx, next); err != nil {
			w.logger.ErrorWithContext(ctx, "inline delivery job failed", err, map[string]interface{}{
				"job_id": next.ID, "kind": string(next.Kind),
			})
		}
	}
	return nil
}

func (w *Worker) deliveryJob(parent *Job, kind JobKind) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		BookingID:  parent.BookingID,
		BookingRef: parent.BookingRef,
		EventID:    parent.EventID,
		UserID:     parent.UserID,
		Email:      parent.Email,
		Phone:      parent.Phone,
		NotBefore:  time.Now().Add(chainDelay),
		CreatedAt:  time.Now(),
	}
}

func (w *Worker) sendEmail(ctx context.Context, job *Job) error {
	tickets, err := w.repo.GetByBookingID(ctx, job.BookingID)
	if err != nil {
		return fmt.Errorf("load tickets for email: %w", err)
	}
	if len(tickets) == 0 {
		return fmt.Errorf("no tickets yet for booking %s", job.BookingRef)
	}

	if err := w.email.SendTickets(ctx, job.Email, job.BookingRef, tickets); err != nil {
		return err
	}
	if err := w.repo.MarkEmailSent(ctx, job.BookingID, time.Now()); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

func (w *Worker) sendSMS(ctx context.Context, job *Job) error {
	tickets, err := w.repo.GetByBookingID(ctx, job.BookingID)
	if err != nil {
		return fmt.Errorf("load tickets for sms: %w", err)
	}
	if len(tickets) == 0 {
		return fmt.Errorf("no tickets yet for booking %s", job.BookingRef)
	}

	if err := w.sms.SendTickets(ctx, job.Phone, job.BookingRef, len(tickets)); err != nil {
		return err
	}
	if err := w.repo.MarkSMSSent(ctx, job.BookingID, time.Now()); err != nil {
		return fmt.Errorf("mark sms sent: %w", err)
	}
	return nil
}
