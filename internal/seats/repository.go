package seats

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSeatTaken      = errors.New("seat already taken")
	ErrNoAvailability = errors.New("no availability for seat type")
)

type Repository interface {
	// PersistLock inserts the seat row and decrements availability in
	// one transaction. The unique constraint on (seat_type_id,
	// seat_label) is the final arbiter of races.
	PersistLock(ctx context.Context, seat *Seat) error
	// ReleaseOwned deletes a locked row held by the user and restores
	// availability. Returns false when there was nothing to release.
	ReleaseOwned(ctx context.Context, eventID, seatTypeID uuid.UUID, seatLabel string, userID uuid.UUID) (bool, error)
	// ExtendOwned moves expires_at forward for a locked row held by
	// the user. The deadline is an absolute timestamp computed by the
	// caller.
	ExtendOwned(ctx context.Context, seatTypeID uuid.UUID, seatLabel string, userID uuid.UUID, newExpiresAt time.Time) (bool, error)

	GetByLabel(ctx context.Context, seatTypeID uuid.UUID, seatLabel string) (*Seat, error)
	BatchGetByLabels(ctx context.Context, seatTypeID uuid.UUID, seatLabels []string) ([]Seat, error)
	ListLockedByUser(ctx context.Context, eventID, userID uuid.UUID) ([]Seat, error)

	// DeleteExpiredLocks removes lock rows past expiry and returns the
	// count removed per seat type.
	DeleteExpiredLocks(ctx context.Context, now time.Time) (map[uuid.UUID]int, error)
	// RestoreAvailability adds k back to a seat type, clamped at its
	// total quantity.
	RestoreAvailability(ctx context.Context, seatTypeID uuid.UUID, k int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) PersistLock(ctx context.Context, seat *Seat) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seat_type_id"}, {Name: "seat_label"}},
			DoNothing: true,
		}).Create(seat)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSeatTaken
		}

		// Guarded decrement; available_quantity can never cross zero
		dec := tx.Exec(`
			UPDATE event_seat_types
			SET available_quantity = available_quantity - 1
			WHERE id = ? AND available_quantity > 0
		`, seat.SeatTypeID)
		if dec.Error != nil {
			return dec.Error
		}
		if dec.RowsAffected == 0 {
			// A free label on a sold-out type means the projection and
			// the rows disagree; abort rather than oversell.
			return ErrNoAvailability
		}

		return nil
	})
}

func (r *repository) ReleaseOwned(ctx context.Context, eventID, seatTypeID uuid.UUID, seatLabel string, userID uuid.UUID) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(
			"event_id = ? AND seat_type_id = ? AND seat_label = ? AND owner_user_id = ? AND status = ?",
			eventID, seatTypeID, seatLabel, userID, SeatStatusLocked,
		).Delete(&Seat{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		released = true

		return tx.Exec(`
			UPDATE event_seat_types
			SET available_quantity = LEAST(quantity, available_quantity + 1)
			WHERE id = ?
		`, seatTypeID).Error
	})
	return released, err
}

func (r *repository) ExtendOwned(ctx context.Context, seatTypeID uuid.UUID, seatLabel string, userID uuid.UUID, newExpiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Seat{}).
		Where("seat_type_id = ? AND seat_label = ? AND owner_user_id = ? AND status = ?",
			seatTypeID, seatLabel, userID, SeatStatusLocked).
		Update("expires_at", newExpiresAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetByLabel(ctx context.Context, seatTypeID uuid.UUID, seatLabel string) (*Seat, error) {
	var seat Seat
	err := r.db.WithContext(ctx).
		Where("seat_type_id = ? AND seat_label = ?", seatTypeID, seatLabel).
		First(&seat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seat, nil
}

func (r *repository) BatchGetByLabels(ctx context.Context, seatTypeID uuid.UUID, seatLabels []string) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Where("seat_type_id = ? AND seat_label IN ?", seatTypeID, seatLabels).
		Find(&seats).Error
	return seats, err
}

func (r *repository) ListLockedByUser(ctx context.Context, eventID, userID uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND owner_user_id = ? AND status = ? AND expires_at > ?",
			eventID, userID, SeatStatusLocked, time.Now().UTC()).
		Find(&seats).Error
	return seats, err
}

func (r *repository) DeleteExpiredLocks(ctx context.Context, now time.Time) (map[uuid.UUID]int, error) {
	type expiredRow struct {
		SeatTypeID uuid.UUID `gorm:"column:seat_type_id"`
	}

	var rows []expiredRow
	err := r.db.WithContext(ctx).Raw(`
		DELETE FROM seats
		WHERE status = ? AND expires_at <= ? AND owner_user_id IS NOT NULL
		RETURNING seat_type_id
	`, SeatStatusLocked, now).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.SeatTypeID]++
	}
	return counts, nil
}

func (r *repository) RestoreAvailability(ctx context.Context, seatTypeID uuid.UUID, k int) error {
	if k <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(`
		UPDATE event_seat_types
		SET available_quantity = LEAST(quantity, available_quantity + ?)
		WHERE id = ?
	`, k, seatTypeID).Error
}
