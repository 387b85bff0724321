package bookings

import (
	"context"
	"errors"
	"time"

	"ticketly/internal/seats"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrStaleLocks         = errors.New("seat locks are stale or not held")
	ErrAlreadyBooked      = errors.New("seat already linked to a booking")
	ErrReferenceExhausted = errors.New("booking reference generation exhausted retries")
	ErrBookingExpired     = errors.New("booking payment window elapsed")
	ErrNotPending         = errors.New("booking is not pending")
	ErrSeatsNotLocked     = errors.New("booked seats are no longer locked")
	ErrConfirmRace        = errors.New("booking confirmation lost the race")
	ErrBookingInFlight    = errors.New("booking is being modified by another request")
	ErrAlreadyConfirmed   = errors.New("booking already confirmed and paid")
	ErrNotOwner           = errors.New("booking belongs to another user")
)

// CancelOutcome reports what a cancellation actually did so the service
// can restore counters and clean up lock keys after commit.
type CancelOutcome struct {
	Booking          *Booking
	AlreadyCancelled bool
	RestoredByType   map[uuid.UUID]int
	ReleasedSeats    []BookingSeat
}

type Repository interface {
	CreateBooking(ctx context.Context, userID, eventID uuid.UUID, selections []SeatSelection, expiresAt time.Time) (*Booking, error)
	ConfirmBooking(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string, now time.Time) (*Booking, bool, error)
	CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string, now time.Time) (*CancelOutcome, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetByReference(ctx context.Context, reference string) (*Booking, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error)

	// SetPaymentOrder stores the provider order id on a pending booking.
	SetPaymentOrder(ctx context.Context, bookingID uuid.UUID, orderID, gateway string) error
	// MarkPaymentFailed flags a failed charge without touching seats.
	MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error

	// ListExpiredPending returns pending bookings past their payment
	// window, oldest first.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateBooking(ctx context.Context, userID, eventID uuid.UUID, selections []SeatSelection, expiresAt time.Time) (*Booking, error) {
	var booking *Booking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		lockedSeats := make([]seats.Seat, 0, len(selections))
		for _, sel := range selections {
			var seat seats.Seat
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("event_id = ? AND seat_type_id = ? AND seat_label = ?",
					eventID, sel.SeatTypeID, sel.SeatLabel).
				First(&seat).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrStaleLocks
				}
				return err
			}
			if seat.Status != seats.SeatStatusLocked || seat.OwnerUserID != userID || !seat.ExpiresAt.After(now) {
				return ErrStaleLocks
			}
			lockedSeats = append(lockedSeats, seat)
		}

		seatIDs := make([]uuid.UUID, len(lockedSeats))
		for i, seat := range lockedSeats {
			seatIDs[i] = seat.ID
		}

		var linked int64
		err := tx.Table("booking_seats").
			Joins("JOIN bookings ON bookings.id = booking_seats.booking_id").
			Where("booking_seats.seat_id IN ? AND bookings.status <> ?", seatIDs, BookingStatusCancelled).
			Count(&linked).Error
		if err != nil {
			return err
		}
		if linked > 0 {
			return ErrAlreadyBooked
		}

		prices, err := seatTypePrices(tx, selections)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, seat := range lockedSeats {
			price, ok := prices[seat.SeatTypeID]
			if !ok {
				return ErrStaleLocks
			}
			total = total.Add(price)
		}

		created, err := insertWithReference(tx, &Booking{
			EventID:       eventID,
			UserID:        userID,
			Status:        BookingStatusPending,
			PaymentStatus: PaymentStatusPending,
			TotalAmount:   total,
			ExpiresAt:     expiresAt,
		})
		if err != nil {
			return err
		}

		bookingSeats := make([]BookingSeat, len(lockedSeats))
		for i, seat := range lockedSeats {
			bookingSeats[i] = BookingSeat{
				BookingID:  created.ID,
				SeatID:     seat.ID,
				SeatTypeID: seat.SeatTypeID,
				SeatLabel:  seat.SeatLabel,
				PricePaid:  prices[seat.SeatTypeID],
			}
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seat_id"}},
			DoNothing: true,
		}).Create(&bookingSeats)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(bookingSeats)) {
			return ErrAlreadyBooked
		}

		created.Seats = bookingSeats
		booking = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// insertWithReference retries the insert on reference collisions. The
// reference is the only unique constraint on bookings, so a duplicate
// key error here can only mean a suffix collision.
func insertWithReference(tx *gorm.DB, booking *Booking) (*Booking, error) {
	for attempt := 0; attempt < maxReferenceRetries; attempt++ {
		reference, err := GenerateReference(time.Now())
		if err != nil {
			return nil, err
		}
		booking.Reference = reference

		err = tx.Create(booking).Error
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		booking.ID = uuid.Nil
	}
	return nil, ErrReferenceExhausted
}

func seatTypePrices(tx *gorm.DB, selections []SeatSelection) (map[uuid.UUID]decimal.Decimal, error) {
	typeIDs := make([]uuid.UUID, 0, len(selections))
	seen := make(map[uuid.UUID]bool, len(selections))
	for _, sel := range selections {
		if !seen[sel.SeatTypeID] {
			seen[sel.SeatTypeID] = true
			typeIDs = append(typeIDs, sel.SeatTypeID)
		}
	}

	var rows []struct {
		ID    uuid.UUID       `gorm:"column:id"`
		Price decimal.Decimal `gorm:"column:price"`
	}
	err := tx.Table("event_seat_types").
		Select("id, price").
		Where("id IN ?", typeIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	prices := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		prices[row.ID] = row.Price
	}
	return prices, nil
}

// lockedSeatQuery locks the booking's seat rows for the confirmation
// transaction. FOR UPDATE cannot ride on an aggregate, so callers Find
// the rows and count what came back.
func lockedSeatQuery(tx *gorm.DB, seatIDs []uuid.UUID) *gorm.DB {
	return tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND status = ?", seatIDs, seats.SeatStatusLocked)
}

func (r *repository) ConfirmBooking(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string, now time.Time) (*Booking, bool, error) {
	var booking *Booking
	alreadyConfirmed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bookingID).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if record.Status == BookingStatusConfirmed &&
			record.PaymentStatus == PaymentStatusCompleted &&
			record.PaymentID == paymentID {
			alreadyConfirmed = true
			booking = &record
			return nil
		}
		if record.Status != BookingStatusPending {
			return ErrNotPending
		}
		if !record.ExpiresAt.After(now) {
			return ErrBookingExpired
		}

		var bookingSeats []BookingSeat
		if err := tx.Where("booking_id = ?", record.ID).Find(&bookingSeats).Error; err != nil {
			return err
		}
		seatIDs := make([]uuid.UUID, len(bookingSeats))
		for i, bs := range bookingSeats {
			seatIDs[i] = bs.SeatID
		}

		var lockedSeats []seats.Seat
		if err := lockedSeatQuery(tx, seatIDs).Find(&lockedSeats).Error; err != nil {
			return err
		}
		if len(lockedSeats) != len(seatIDs) {
			return ErrSeatsNotLocked
		}

		// Optimistic guard against a concurrent confirmation that
		// slipped in between our read and this write.
		result := tx.Model(&Booking{}).
			Where("id = ? AND status = ? AND payment_status = ?",
				record.ID, BookingStatusPending, PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":          BookingStatusConfirmed,
				"payment_status":  PaymentStatusCompleted,
				"payment_id":      paymentID,
				"payment_gateway": gateway,
				"confirmed_at":    now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConfirmRace
		}

		for _, id := range seatIDs {
			upd := tx.Model(&seats.Seat{}).
				Where("id = ? AND status = ?", id, seats.SeatStatusLocked).
				Updates(map[string]interface{}{"status": seats.SeatStatusBooked, "booked_at": now})
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return ErrSeatsNotLocked
			}
		}

		record.Status = BookingStatusConfirmed
		record.PaymentStatus = PaymentStatusCompleted
		record.PaymentID = paymentID
		record.PaymentGateway = gateway
		record.ConfirmedAt = &now
		record.Seats = bookingSeats
		booking = &record
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return booking, alreadyConfirmed, nil
}

func (r *repository) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string, now time.Time) (*CancelOutcome, error) {
	outcome := &CancelOutcome{RestoredByType: make(map[uuid.UUID]int)}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id = ?", bookingID).
			First(&record).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// SKIP LOCKED hides rows someone else holds; a plain read
			// tells a locked row apart from a missing one.
			var exists int64
			if countErr := tx.Model(&Booking{}).Where("id = ?", bookingID).Count(&exists).Error; countErr != nil {
				return countErr
			}
			if exists > 0 {
				return ErrBookingInFlight
			}
			return ErrBookingNotFound
		}

		// Sweeper passes uuid.Nil and may cancel anyone's booking
		if userID != uuid.Nil && record.UserID != userID {
			return ErrNotOwner
		}
		if record.Status == BookingStatusConfirmed && record.PaymentStatus == PaymentStatusCompleted {
			return ErrAlreadyConfirmed
		}
		if record.Status == BookingStatusCancelled {
			outcome.AlreadyCancelled = true
			outcome.Booking = &record
			return nil
		}

		var bookingSeats []BookingSeat
		if err := tx.Where("booking_id = ?", record.ID).Find(&bookingSeats).Error; err != nil {
			return err
		}
		seatIDs := make([]uuid.UUID, len(bookingSeats))
		for i, bs := range bookingSeats {
			seatIDs[i] = bs.SeatID
		}

		if len(seatIDs) > 0 {
			var releasedRows []struct {
				SeatTypeID uuid.UUID `gorm:"column:seat_type_id"`
			}
			err = tx.Raw(`
				DELETE FROM seats
				WHERE id IN ? AND status = ?
				RETURNING seat_type_id
			`, seatIDs, seats.SeatStatusLocked).Scan(&releasedRows).Error
			if err != nil {
				return err
			}
			for _, row := range releasedRows {
				outcome.RestoredByType[row.SeatTypeID]++
			}

			for seatTypeID, k := range outcome.RestoredByType {
				err = tx.Exec(`
					UPDATE event_seat_types
					SET available_quantity = LEAST(quantity, available_quantity + ?)
					WHERE id = ?
				`, k, seatTypeID).Error
				if err != nil {
					return err
				}
			}
		}

		err = tx.Model(&Booking{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"status":              BookingStatusCancelled,
				"payment_status":      PaymentStatusRefunded,
				"cancelled_at":        now,
				"cancellation_reason": reason,
			}).Error
		if err != nil {
			return err
		}

		record.Status = BookingStatusCancelled
		record.PaymentStatus = PaymentStatusRefunded
		record.CancelledAt = &now
		record.CancellationReason = reason
		outcome.Booking = &record
		outcome.ReleasedSeats = bookingSeats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Preload("Seats").Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Preload("Seats").Where("reference = ?", reference).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Preload("Seats").Where("payment_id = ?", paymentID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// userBookingsQuery scopes the listing to the owner, optionally
// narrowed to one status.
func userBookingsQuery(db *gorm.DB, userID uuid.UUID, query BookingListQuery) *gorm.DB {
	q := db.Model(&Booking{}).Where("user_id = ?", userID)
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	return q
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = 10
	}

	base := userBookingsQuery(r.db.WithContext(ctx), userID, query)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var records []Booking
	err := base.Preload("Seats").
		Order("booked_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &PaginatedBookings{
		Bookings:   records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (r *repository) SetPaymentOrder(ctx context.Context, bookingID uuid.UUID, orderID, gateway string) error {
	result := r.db.WithContext(ctx).Model(&Booking{}).
		Where("id = ? AND status = ?", bookingID, BookingStatusPending).
		Updates(map[string]interface{}{"payment_id": orderID, "payment_gateway": gateway})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repository) MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Booking{}).
		Where("id = ? AND status = ?", bookingID, BookingStatusPending).
		Update("payment_status", PaymentStatusFailed).Error
}

func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&Booking{}).
		Where("status = ? AND expires_at <= ?", BookingStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
