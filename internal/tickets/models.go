package tickets

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusGenerated TicketStatus = "generated"
	TicketStatusDelivered TicketStatus = "delivered"
	TicketStatusFailed    TicketStatus = "failed"
)

// AggregateStatus summarises a booking's ticket set for polling clients.
type AggregateStatus string

const (
	AggregatePending    AggregateStatus = "pending"
	AggregateGenerating AggregateStatus = "generating"
	AggregatePartial    AggregateStatus = "partial"
	AggregateReady      AggregateStatus = "ready"
)

// Ticket is one admission credential. TicketID is the human-facing
// identifier printed on the QR; the surrogate ID is internal.
type Ticket struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	TicketID    string       `json:"ticket_id" gorm:"uniqueIndex;not null;size:64"`
	BookingID   uuid.UUID    `json:"booking_id" gorm:"type:uuid;not null;index"`
	EventID     uuid.UUID    `json:"event_id" gorm:"type:uuid;not null"`
	UserID      uuid.UUID    `json:"user_id" gorm:"type:uuid;not null"`
	SeatID      uuid.UUID    `json:"seat_id" gorm:"type:uuid;not null"`
	SeatTypeID  uuid.UUID    `json:"seat_type_id" gorm:"type:uuid;not null"`
	SeatLabel   string       `json:"seat_label" gorm:"not null;size:20"`
	QRPayload   string       `json:"qr_payload" gorm:"type:text"`
	QRImage     []byte       `json:"qr_image,omitempty" gorm:"type:bytea"`
	Status      TicketStatus `json:"status" gorm:"type:varchar(15);not null;default:'pending'"`
	EmailSent   bool         `json:"email_sent" gorm:"not null;default:false"`
	SMSSent     bool         `json:"sms_sent" gorm:"not null;default:false"`
	DeliveredAt *time.Time   `json:"delivered_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// BuildTicketID derives the deterministic ticket identifier. Reruns of
// the same job produce the same id, which is what lets the upsert stay
// idempotent.
func BuildTicketID(bookingRef, seatLabel string) string {
	return fmt.Sprintf("TKT-%s-%s", bookingRef, seatLabel)
}

type TicketsResponse struct {
	BookingID       uuid.UUID       `json:"booking_id"`
	Tickets         []Ticket        `json:"tickets"`
	AggregateStatus AggregateStatus `json:"aggregate_status"`
}

type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
)

type JobStatusResponse struct {
	JobID           string   `json:"job_id"`
	State           JobState `json:"state"`
	ProgressPercent int      `json:"progress_percent"`
	Error           string   `json:"error,omitempty"`
}

// Aggregate reduces a ticket set to one client-facing status.
func Aggregate(tickets []Ticket) AggregateStatus {
	if len(tickets) == 0 {
		return AggregatePending
	}

	failed := 0
	done := 0
	for _, t := range tickets {
		switch t.Status {
		case TicketStatusGenerated, TicketStatusDelivered:
			done++
		case TicketStatusFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		return AggregatePartial
	case done == len(tickets):
		return AggregateReady
	default:
		return AggregateGenerating
	}
}
