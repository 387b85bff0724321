package idempotency

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Key is one deduplicated mutating operation. The client supplies the
// key; the row is the lock, the snapshot is the replayable answer.
type Key struct {
	ID               uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Key              string    `json:"key" gorm:"uniqueIndex;not null;size:255"`
	OperationType    string    `json:"operation_type" gorm:"not null;size:64"`
	ResourceID       string    `json:"resource_id" gorm:"size:64"`
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Status           Status    `json:"status" gorm:"not null;default:'pending'"`
	ResponseSnapshot []byte    `json:"-" gorm:"type:jsonb"`
	ExpiresAt        time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Key) TableName() string {
	return "idempotency_keys"
}
