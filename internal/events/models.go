package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Event struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Name        string      `json:"name" gorm:"not null;size:255"`
	Description string      `json:"description" gorm:"type:text"`
	Venue       string      `json:"venue" gorm:"not null;size:255"`
	StartDate   time.Time   `json:"start_date" gorm:"not null;index"`
	Status      EventStatus `json:"status" gorm:"type:varchar(20);default:'draft'"`
	OrganizerID uuid.UUID   `json:"organizer_id" gorm:"type:uuid;not null;index"`
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"autoUpdateTime"`

	SeatTypes []SeatType `json:"seat_types,omitempty" gorm:"foreignKey:EventID"`
}

func (Event) TableName() string {
	return "events"
}

// SeatType is a priced tier within an event. Availability is arithmetic:
// quantity minus live seat rows; available_quantity is the persisted
// projection the availability cache mirrors.
type SeatType struct {
	ID                uuid.UUID       `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	EventID           uuid.UUID       `json:"event_id" gorm:"type:uuid;not null;index"`
	Name              string          `json:"name" gorm:"not null;size:100"`
	Description       string          `json:"description" gorm:"type:text"`
	Price             decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Quantity          int             `json:"quantity" gorm:"not null;check:quantity >= 0"`
	AvailableQuantity int             `json:"available_quantity" gorm:"not null;check:available_quantity >= 0"`
	CreatedAt         time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SeatType) TableName() string {
	return "event_seat_types"
}

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=255"`
	Description string    `json:"description" binding:"max=2000"`
	Venue       string    `json:"venue" binding:"required,min=3,max=255"`
	StartDate   time.Time `json:"start_date" binding:"required"`
}

type UpdateEventRequest struct {
	Name        *string    `json:"name" binding:"omitempty,min=3,max=255"`
	Description *string    `json:"description" binding:"omitempty,max=2000"`
	Venue       *string    `json:"venue" binding:"omitempty,min=3,max=255"`
	StartDate   *time.Time `json:"start_date"`
	Status      *string    `json:"status" binding:"omitempty,oneof=draft published cancelled"`
}

type CreateSeatTypeRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=2000"`
	Price       string `json:"price" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1,max=100000"`
}

type UpdateSeatTypeRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	Price       *string `json:"price"`
}

type EventListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search string `form:"search"`
	Status string `form:"status" binding:"omitempty,oneof=draft published cancelled"`
}

type SeatTypeResponse struct {
	ID                string `json:"id"`
	EventID           string `json:"event_id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Price             string `json:"price"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}

type EventResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Venue       string             `json:"venue"`
	StartDate   time.Time          `json:"start_date"`
	Status      EventStatus        `json:"status"`
	OrganizerID string             `json:"organizer_id"`
	SeatTypes   []SeatTypeResponse `json:"seat_types,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type PaginatedEvents struct {
	Events     []EventResponse `json:"events"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}

func (st *SeatType) ToResponse() SeatTypeResponse {
	return SeatTypeResponse{
		ID:                st.ID.String(),
		EventID:           st.EventID.String(),
		Name:              st.Name,
		Description:       st.Description,
		Price:             st.Price.StringFixed(2),
		Quantity:          st.Quantity,
		AvailableQuantity: st.AvailableQuantity,
	}
}

func (e *Event) ToResponse() EventResponse {
	resp := EventResponse{
		ID:          e.ID.String(),
		Name:        e.Name,
		Description: e.Description,
		Venue:       e.Venue,
		StartDate:   e.StartDate,
		Status:      e.Status,
		OrganizerID: e.OrganizerID.String(),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	for i := range e.SeatTypes {
		resp.SeatTypes = append(resp.SeatTypes, e.SeatTypes[i].ToResponse())
	}
	return resp
}

// IsOpenForBooking reports whether seats of this event may be locked
func (e *Event) IsOpenForBooking(now time.Time) bool {
	return e.Status == EventStatusPublished && e.StartDate.After(now)
}
