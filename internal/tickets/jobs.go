package tickets

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobGenerateTickets JobKind = "generate_tickets"
	JobSendEmail       JobKind = "send_email"
	JobSendSMS         JobKind = "send_sms"
)

// retryBackoffBase returns the first-retry delay per job kind; each
// further attempt doubles it.
func retryBackoffBase(kind JobKind) time.Duration {
	switch kind {
	case JobSendEmail:
		return 10 * time.Second
	case JobSendSMS:
		return 15 * time.Second
	default:
		return 5 * time.Second
	}
}

const maxJobAttempts = 3

// retryDelay doubles the kind's base delay on every further attempt.
func retryDelay(kind JobKind, attempt int) time.Duration {
	return retryBackoffBase(kind) << (attempt - 1)
}

// chainDelay gives the DB transaction that confirmed the booking time
// to become visible before delivery jobs read it.
const chainDelay = 2 * time.Second

type JobSeat struct {
	SeatID     uuid.UUID `json:"seat_id"`
	SeatTypeID uuid.UUID `json:"seat_type_id"`
	SeatLabel  string    `json:"seat_label"`
}

// Job is the self-contained unit of work on the ticket-generation
// topic. Everything a worker needs travels in the payload so workers
// never read the coordinator's tables for routing.
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	BookingID  uuid.UUID `json:"booking_id"`
	BookingRef string    `json:"booking_ref"`
	EventID    uuid.UUID `json:"event_id"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Seats      []JobSeat `json:"seats,omitempty"`
	NotBefore  time.Time `json:"not_before,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// PartitionKey keeps every job for one booking on the same partition
// so generation and delivery stay ordered.
func (j *Job) PartitionKey() string {
	return j.BookingID.String()
}
