package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WebhookEvent is the audit log of every delivery the provider sent us,
// accepted or not. Forensics only; processing state lives on bookings.
type WebhookEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	EventType   string    `json:"event_type" gorm:"not null;size:50;index"`
	OrderID     string    `json:"order_id" gorm:"size:64;index"`
	PaymentID   string    `json:"payment_id" gorm:"size:64"`
	Accepted    bool      `json:"accepted" gorm:"not null"`
	Detail      string    `json:"detail" gorm:"size:255"`
	RawPayload  []byte    `json:"-" gorm:"type:jsonb"`
	DeliveredAt time.Time `json:"delivered_at" gorm:"autoCreateTime"`
}

func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}

type CreateOrderRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	Amount    string    `json:"amount" binding:"required"`
	Currency  string    `json:"currency" binding:"omitempty,len=3"`
}

// OrderResponse carries what a checkout client needs to open the
// provider's payment form.
type OrderResponse struct {
	OrderID          string    `json:"order_id"`
	BookingID        uuid.UUID `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	AmountMinor      int64     `json:"amount"`
	Currency         string    `json:"currency"`
	KeyID            string    `json:"key_id"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type VerifyResponse struct {
	BookingID        uuid.UUID `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	BookingStatus    string    `json:"booking_status"`
	PaymentStatus    string    `json:"payment_status"`
}

// WebhookResult is what the webhook endpoint reports back to the
// provider on a non-retriable outcome.
type WebhookResult struct {
	Event     string `json:"event"`
	Processed bool   `json:"processed"`
	Detail    string `json:"detail,omitempty"`
}

// webhookPayload mirrors the provider's envelope. Amounts arrive in
// minor units.
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// toMinorUnits converts a decimal major-unit amount to integer minor
// units (paise).
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
