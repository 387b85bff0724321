package idempotency

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrKeyNotFound = errors.New("idempotency key not found")

type Repository interface {
	// TryInsert claims the key. Returns true when this request won the
	// insert, false when the row already existed.
	TryInsert(ctx context.Context, key *Key) (bool, error)
	Get(ctx context.Context, key string) (*Key, error)
	UpdateStatus(ctx context.Context, key string, status Status, snapshot []byte) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) TryInsert(ctx context.Context, key *Key) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(key)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Get(ctx context.Context, key string) (*Key, error) {
	var record Key
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) UpdateStatus(ctx context.Context, key string, status Status, snapshot []byte) error {
	updates := map[string]interface{}{"status": status}
	if snapshot != nil {
		updates["response_snapshot"] = snapshot
	}

	result := r.db.WithContext(ctx).Model(&Key{}).
		Where("key = ?", key).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&Key{})
	return result.RowsAffected, result.Error
}
