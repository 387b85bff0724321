package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Booking ties a set of locked seats to a payment window. PaymentID
// holds the provider order id while pending and is overwritten with the
// payment id at confirmation.
type Booking struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Reference          string          `json:"booking_reference" gorm:"uniqueIndex;not null;size:30"`
	EventID            uuid.UUID       `json:"event_id" gorm:"type:uuid;not null"`
	UserID             uuid.UUID       `json:"user_id" gorm:"type:uuid;not null"`
	Status             BookingStatus   `json:"status" gorm:"type:varchar(15);not null;default:'pending'"`
	PaymentStatus      PaymentStatus   `json:"payment_status" gorm:"type:varchar(15);not null;default:'pending'"`
	PaymentID          string          `json:"payment_id,omitempty" gorm:"size:64"`
	PaymentGateway     string          `json:"payment_gateway,omitempty" gorm:"size:30"`
	TotalAmount        decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null"`
	ExpiresAt          time.Time       `json:"expires_at" gorm:"not null"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty" gorm:"size:255"`
	BookedAt           time.Time       `json:"booked_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	Seats []BookingSeat `json:"seats,omitempty" gorm:"foreignKey:BookingID"`
}

func (Booking) TableName() string {
	return "bookings"
}

// BookingSeat links a booking to one reserved seat row. The unique index
// on seat_id keeps a seat from belonging to two bookings.
type BookingSeat struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	BookingID  uuid.UUID       `json:"booking_id" gorm:"type:uuid;not null;index"`
	SeatID     uuid.UUID       `json:"seat_id" gorm:"type:uuid;not null"`
	SeatTypeID uuid.UUID       `json:"seat_type_id" gorm:"type:uuid;not null"`
	SeatLabel  string          `json:"seat_label" gorm:"not null;size:20"`
	PricePaid  decimal.Decimal `json:"price_paid" gorm:"type:numeric(12,2);not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (BookingSeat) TableName() string {
	return "booking_seats"
}

type SeatSelection struct {
	SeatLabel  string    `json:"seat_label" binding:"required"`
	SeatTypeID uuid.UUID `json:"seat_type_id" binding:"required"`
}

type CreateBookingRequest struct {
	EventID uuid.UUID       `json:"event_id" binding:"required"`
	Seats   []SeatSelection `json:"seats" binding:"required,min=1,max=10,dive"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

type CancelResult struct {
	BookingID     uuid.UUID     `json:"booking_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	SeatsReleased int           `json:"seats_released"`
}

type BookingListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled expired"`
	Page   int    `form:"page,default=1" binding:"omitempty,min=1"`
	Limit  int    `form:"limit,default=10" binding:"omitempty,min=1,max=100"`
}

type PaginatedBookings struct {
	Bookings   []Booking `json:"bookings"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"total_pages"`
}

// ConfirmResult is what the payment webhook path hands back. TicketJobID
// is empty when ticket generation ran inline.
type ConfirmResult struct {
	Booking     *Booking `json:"booking"`
	TicketJobID string   `json:"ticket_job_id,omitempty"`
}
