package tickets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// UpsertTicket inserts or refreshes a ticket by its deterministic
	// ticket_id, making job reruns harmless.
	UpsertTicket(ctx context.Context, ticket *Ticket) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error)
	MarkEmailSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error
	MarkSMSSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) UpsertTicket(ctx context.Context, ticket *Ticket) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticket_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"qr_payload", "qr_image", "status", "updated_at",
		}),
	}).Create(ticket).Error
}

func (r *repository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("seat_label ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) MarkEmailSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE tickets
		SET email_sent = true,
		    status = 'delivered',
		    delivered_at = COALESCE(delivered_at, ?),
		    updated_at = ?
		WHERE booking_id = ? AND status IN ('generated', 'delivered')
	`, now, now, bookingID).Error
}

func (r *repository) MarkSMSSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE tickets
		SET sms_sent = true,
		    status = 'delivered',
		    delivered_at = COALESCE(delivered_at, ?),
		    updated_at = ?
		WHERE booking_id = ? AND status IN ('generated', 'delivered')
	`, now, now, bookingID).Error
}
