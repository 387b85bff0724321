package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrSeatTypeNotFound = errors.New("seat type not found")
)

type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	GetWithSeatTypes(ctx context.Context, id uuid.UUID) (*Event, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetAll(ctx context.Context, query EventListQuery) ([]Event, int64, error)

	CreateSeatType(ctx context.Context, seatType *SeatType) error
	GetSeatType(ctx context.Context, id uuid.UUID) (*SeatType, error)
	UpdateSeatType(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*SeatType, error)
	DeleteSeatType(ctx context.Context, id uuid.UUID) error
	CountLiveSeats(ctx context.Context, seatTypeID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) GetWithSeatTypes(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Preload("SeatTypes").Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*Event, error) {
	var event Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&event).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&SeatType{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Event{}).Error
	})
}

func (r *repository) GetAll(ctx context.Context, query EventListQuery) ([]Event, int64, error) {
	var events []Event
	var totalCount int64

	db := r.db.WithContext(ctx).Model(&Event{})

	if query.Search != "" {
		searchTerm := "%" + strings.ToLower(query.Search) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(venue) LIKE ?", searchTerm, searchTerm)
	}

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	if err := db.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}
	offset := (query.Page - 1) * query.Limit

	err := db.Preload("SeatTypes").
		Order("start_date ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&events).Error

	return events, totalCount, err
}

func (r *repository) CreateSeatType(ctx context.Context, seatType *SeatType) error {
	return r.db.WithContext(ctx).Create(seatType).Error
}

func (r *repository) GetSeatType(ctx context.Context, id uuid.UUID) (*SeatType, error) {
	var seatType SeatType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&seatType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeatTypeNotFound
		}
		return nil, err
	}
	return &seatType, nil
}

func (r *repository) UpdateSeatType(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*SeatType, error) {
	var seatType SeatType
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&seatType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeatTypeNotFound
		}
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&seatType).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&seatType).Error; err != nil {
		return nil, err
	}
	return &seatType, nil
}

func (r *repository) DeleteSeatType(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&SeatType{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSeatTypeNotFound
	}
	return nil
}

// CountLiveSeats counts seat rows still alive under a seat type. A
// seat type with live rows cannot be deleted.
func (r *repository) CountLiveSeats(ctx context.Context, seatTypeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table("seats").
		Where("seat_type_id = ?", seatTypeID).
		Count(&count).Error
	return count, err
}
