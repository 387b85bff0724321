package database

import (
	"ticketly/internal/auth"
	"ticketly/internal/bookings"
	"ticketly/internal/events"
	"ticketly/internal/idempotency"
	"ticketly/internal/payments"
	"ticketly/internal/seats"
	"ticketly/internal/tickets"
	"ticketly/internal/users"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&events.Event{},
		&events.SeatType{},
		&seats.Seat{},
		&bookings.Booking{},
		&bookings.BookingSeat{},
		&tickets.Ticket{},
		&payments.WebhookEvent{},
		&auth.BlacklistedToken{},
		&auth.RefreshToken{},
		&idempotency.Key{},
	)
}
