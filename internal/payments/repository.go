package payments

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
