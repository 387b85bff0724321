package payments

import (
	"context"
	"encoding/json"

	"ticketly/internal/bookings"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/config"
	"ticketly/internal/users"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const gatewayName = "razorpay"

type Service interface {
	// CreateOrder opens a provider order for a pending booking the
	// caller owns and stores the order id on the booking.
	CreateOrder(ctx context.Context, userID uuid.UUID, req *CreateOrderRequest) (*OrderResponse, error)
	// HandleWebhook verifies and dispatches one provider delivery.
	// Errors tagged INTERNAL signal the provider to redeliver.
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error)
	// VerifyOrder is the polling fallback for clients that missed the
	// realtime confirmation.
	VerifyOrder(ctx context.Context, orderID string, userID uuid.UUID, role string) (*VerifyResponse, error)
}

type service struct {
	gateway     Gateway
	repo        Repository
	bookingRepo bookings.Repository
	coordinator bookings.Service
	cfg         *config.Config
	logger      *logger.Logger
}

func NewService(gateway Gateway, repo Repository, bookingRepo bookings.Repository, coordinator bookings.Service, cfg *config.Config) Service {
	return &service{
		gateway:     gateway,
		repo:        repo,
		bookingRepo: bookingRepo,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger.GetDefault(),
	}
}

func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, req *CreateOrderRequest) (*OrderResponse, error) {
	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
	}
	if booking.UserID != userID {
		return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
	}
	if booking.Status != bookings.BookingStatusPending || booking.PaymentStatus != bookings.PaymentStatusPending {
		return nil, apperrors.New(apperrors.KindConflict, "booking is not awaiting payment")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "amount must be a decimal string")
	}
	tolerance := decimal.NewFromFloat(s.cfg.Booking.AmountTolerance)
	if booking.TotalAmount.Sub(amount).Abs().GreaterThan(tolerance) {
		return nil, apperrors.Newf(apperrors.KindValidation,
			"amount %s does not match booking total %s", amount.StringFixed(2), booking.TotalAmount.StringFixed(2))
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Payment.Currency
	}

	// Charge the authoritative total, not the client-declared amount
	order, err := s.gateway.CreateOrder(toMinorUnits(booking.TotalAmount), currency, booking.Reference,
		map[string]interface{}{"booking_id": booking.ID.String()})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to create payment order")
	}

	if err := s.bookingRepo.SetPaymentOrder(ctx, booking.ID, order.OrderID, gatewayName); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to attach order to booking")
	}

	return &OrderResponse{
		OrderID:          order.OrderID,
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		AmountMinor:      order.AmountMinor,
		Currency:         order.Currency,
		KeyID:            s.cfg.Payment.KeyID,
		ExpiresAt:        booking.ExpiresAt,
	}, nil
}

func (s *service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(rawBody, signature, s.cfg.Payment.WebhookSecret) {
		s.logger.LogWebhookRejected(ctx, "signature mismatch", "")
		s.recordEvent(ctx, &WebhookEvent{
			EventType:  "unknown",
			Accepted:   false,
			Detail:     "signature mismatch",
			RawPayload: rawBody,
		})
		return nil, apperrors.New(apperrors.KindPaymentVerification, "invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		s.logger.LogWebhookRejected(ctx, "malformed payload", "")
		return nil, apperrors.New(apperrors.KindPaymentVerification, "malformed webhook payload")
	}

	entity := payload.Payload.Payment.Entity
	event := &WebhookEvent{
		EventType:  payload.Event,
		OrderID:    entity.OrderID,
		PaymentID:  entity.ID,
		RawPayload: rawBody,
	}

	switch payload.Event {
	case "payment.captured", "payment.authorized":
		result, err := s.confirmFromWebhook(ctx, payload.Event, entity.OrderID, entity.ID, entity.Amount)
		event.Accepted = err == nil
		if err != nil {
			event.Detail = err.Error()
		}
		s.recordEvent(ctx, event)
		return result, err

	case "payment.failed":
		result := s.markFailed(ctx, payload.Event, entity.OrderID)
		event.Accepted = true
		s.recordEvent(ctx, event)
		return result, nil

	default:
		event.Accepted = true
		event.Detail = "ignored"
		s.recordEvent(ctx, event)
		return &WebhookResult{Event: payload.Event, Processed: false, Detail: "event ignored"}, nil
	}
}

func (s *service) confirmFromWebhook(ctx context.Context, eventType, orderID, paymentID string, amountMinor int64) (*WebhookResult, error) {
	booking, err := s.bookingRepo.GetByPaymentID(ctx, orderID)
	if err != nil {
		// Confirmation replaces the stored order id with the payment id,
		// so a redelivered capture matches on the payment id instead.
		if confirmed, lookupErr := s.bookingRepo.GetByPaymentID(ctx, paymentID); lookupErr == nil &&
			confirmed.Status == bookings.BookingStatusConfirmed {
			return &WebhookResult{Event: eventType, Processed: true, Detail: "already confirmed"}, nil
		}
		// An unknown order can never succeed on redelivery
		return &WebhookResult{Event: eventType, Processed: false, Detail: "no booking for order"}, nil
	}

	if amountMinor != toMinorUnits(booking.TotalAmount) {
		s.logger.LogWebhookRejected(ctx, "amount mismatch", "")
		return nil, apperrors.Newf(apperrors.KindPaymentVerification,
			"captured amount %d does not match booking total", amountMinor)
	}

	_, err = s.coordinator.Confirm(ctx, booking.ID, paymentID, gatewayName)
	if err != nil {
		// Only transient store failures ask the provider to retry
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return nil, err
		}
		return &WebhookResult{Event: eventType, Processed: false, Detail: apperrors.MessageOf(err)}, nil
	}

	s.logger.LogWebhookAccepted(ctx, eventType, paymentID)
	return &WebhookResult{Event: eventType, Processed: true}, nil
}

func (s *service) markFailed(ctx context.Context, eventType, orderID string) *WebhookResult {
	booking, err := s.bookingRepo.GetByPaymentID(ctx, orderID)
	if err != nil {
		return &WebhookResult{Event: eventType, Processed: false, Detail: "no booking for order"}
	}
	if err := s.coordinator.MarkPaymentFailed(ctx, booking.ID); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to record payment failure", err,
			map[string]interface{}{"booking_id": booking.ID.String()})
		return &WebhookResult{Event: eventType, Processed: false, Detail: "could not record failure"}
	}
	return &WebhookResult{Event: eventType, Processed: true}
}

func (s *service) VerifyOrder(ctx context.Context, orderID string, userID uuid.UUID, role string) (*VerifyResponse, error) {
	booking, err := s.bookingRepo.GetByPaymentID(ctx, orderID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindNotFound, "order not found")
	}
	if booking.UserID != userID && role != string(users.RoleAdmin) {
		return nil, apperrors.New(apperrors.KindNotFound, "order not found")
	}

	return &VerifyResponse{
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		BookingStatus:    string(booking.Status),
		PaymentStatus:    string(booking.PaymentStatus),
	}, nil
}

func (s *service) recordEvent(ctx context.Context, event *WebhookEvent) {
	if err := s.repo.RecordWebhookEvent(ctx, event); err != nil {
		s.logger.DebugWithContext(ctx, "webhook audit insert failed",
			map[string]interface{}{"event_type": event.EventType, "error": err.Error()})
	}
}
