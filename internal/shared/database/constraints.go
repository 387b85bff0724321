package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// One seat label per seat type. This constraint is what makes the
	// two-phase flow safe: when two requests race past the Redis lock,
	// the second INSERT loses here.
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_seat_label_per_type
		ON seats (seat_type_id, seat_label);
	`).Error
	if err != nil {
		return err
	}

	// A seat row can only ever belong to one booking
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_booking_seat
		ON booking_seats (seat_id);
	`).Error
	if err != nil {
		return err
	}

	// Sweeper scan for expired holds
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_seats_status_expires_at
		ON seats (status, expires_at);
	`).Error
	if err != nil {
		return err
	}

	// Sweeper scan for pending bookings past their payment window
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_status_expires_at
		ON bookings (status, expires_at);
	`).Error
	if err != nil {
		return err
	}

	// Booking history queries
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_user_status
		ON bookings (user_id, status, booked_at DESC);
	`).Error
	if err != nil {
		return err
	}

	// Webhook order lookup maps the provider order id to a booking
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_payment_id
		ON bookings (payment_id);
	`).Error
	if err != nil {
		return err
	}

	// Ticket regeneration must upsert, not duplicate
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_ticket_id
		ON tickets (ticket_id);
	`).Error
	if err != nil {
		return err
	}

	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tickets_booking_id
		ON tickets (booking_id);
	`).Error
	if err != nil {
		return err
	}

	// Sweeper eviction of expired token rows
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_blacklisted_tokens_expires_at
		ON blacklisted_tokens (expires_at);
	`).Error
	if err != nil {
		return err
	}

	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at
		ON refresh_tokens (expires_at);
	`).Error
	if err != nil {
		return err
	}

	// Stale idempotency key cleanup
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_idempotency_keys_created_at
		ON idempotency_keys (created_at);
	`).Error
	if err != nil {
		return err
	}

	return nil
}
