package seats

import (
	"regexp"
	"strings"
	"time"

	"ticketly/internal/shared/apperrors"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatStatusLocked SeatStatus = "locked"
	SeatStatusBooked SeatStatus = "booked"
)

// Seat is a live reservation row. A row exists only while the seat is
// locked or booked; availability is quantity minus rows, never an
// enumeration of free seats.
type Seat struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	EventID     uuid.UUID  `json:"event_id" gorm:"type:uuid;not null;index"`
	SeatTypeID  uuid.UUID  `json:"seat_type_id" gorm:"type:uuid;not null"`
	SeatLabel   string     `json:"seat_label" gorm:"not null;size:20"`
	Status      SeatStatus `json:"status" gorm:"type:varchar(10);not null"`
	OwnerUserID uuid.UUID  `json:"owner_user_id" gorm:"type:uuid;not null"`
	LockedAt    time.Time  `json:"locked_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	BookedAt    *time.Time `json:"booked_at"`
}

func (Seat) TableName() string {
	return "seats"
}

// Lock is the wire view of a soft lock
type Lock struct {
	EventID    string    `json:"event_id"`
	SeatTypeID string    `json:"seat_type_id"`
	SeatLabel  string    `json:"seat_label"`
	UserID     string    `json:"user_id"`
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type LockSeatRequest struct {
	SeatLabel string `json:"seat_label" binding:"required"`
}

type ExtendLockRequest struct {
	SeatLabel         string `json:"seat_label" binding:"required"`
	AdditionalSeconds int    `json:"additional_seconds" binding:"required,min=1,max=3600"`
}

type ReleaseSeatRequest struct {
	SeatLabel string `json:"seat_label" binding:"required"`
}

type BatchGetRequest struct {
	SeatLabels []string `json:"seat_labels" binding:"required,min=1,max=50"`
}

type LockResponse struct {
	Lock              *Lock `json:"lock"`
	AvailableQuantity int   `json:"available_quantity"`
}

var seatLabelPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// NormalizeSeatLabel trims and uppercases a raw label, rejecting
// anything outside [A-Z0-9]{1,20}. Validation happens before any store
// write.
func NormalizeSeatLabel(raw string) (string, error) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if !seatLabelPattern.MatchString(label) {
		return "", apperrors.Newf(apperrors.KindValidation,
			"seat label %q is invalid: must be 1-20 characters A-Z or 0-9", raw)
	}
	return label, nil
}
