package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTokenNotFound = errors.New("token not found")

type Repository interface {
	InsertBlacklisted(ctx context.Context, token *BlacklistedToken) error
	IsBlacklisted(ctx context.Context, tokenHash string) (*BlacklistedToken, error)

	InsertRefresh(ctx context.Context, token *RefreshToken) error
	GetRefresh(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshForUser(ctx context.Context, userID uuid.UUID) ([]RefreshToken, error)

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

func (r *repository) InsertBlacklisted(ctx context.Context, token *BlacklistedToken) error {
	// Revoking an already revoked token is a no-op
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoNothing: true,
		}).
		Create(token).Error
}

func (r *repository) IsBlacklisted(ctx context.Context, tokenHash string) (*BlacklistedToken, error) {
	var token BlacklistedToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *repository) InsertRefresh(ctx context.Context, token *RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *repository) GetRefresh(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var token RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// RevokeRefreshForUser marks every live refresh token revoked and
// returns them so the gate can mirror the revocation into the KV store.
func (r *repository) RevokeRefreshForUser(ctx context.Context, userID uuid.UUID) ([]RefreshToken, error) {
	var tokens []RefreshToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND revoked = false AND expires_at > ?", userID, time.Now().UTC()).
			Find(&tokens).Error; err != nil {
			return err
		}
		if len(tokens) == 0 {
			return nil
		}
		return tx.Model(&RefreshToken{}).
			Where("user_id = ? AND revoked = false", userID).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteExpired removes token rows past their expiry, both kinds
func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&BlacklistedToken{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	res = r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&RefreshToken{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	return total, nil
}
