package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"ticketly/internal/bookings"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

type fakeGateway struct {
	mu      sync.Mutex
	orders  int
	lastAmt int64
	err     error
}

func (f *fakeGateway) CreateOrder(amountMinor int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.orders++
	f.lastAmt = amountMinor
	return &GatewayOrder{
		OrderID:     fmt.Sprintf("order_%d", f.orders),
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}

type fakeWebhookLog struct {
	mu     sync.Mutex
	events []*WebhookEvent
}

func (f *fakeWebhookLog) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeBookingStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*bookings.Booking
	byOrder  map[string]*bookings.Booking
	orderSet map[uuid.UUID]string
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		byID:     make(map[uuid.UUID]*bookings.Booking),
		byOrder:  make(map[string]*bookings.Booking),
		orderSet: make(map[uuid.UUID]string),
	}
}

func (f *fakeBookingStore) CreateBooking(ctx context.Context, userID, eventID uuid.UUID, selections []bookings.SeatSelection, expiresAt time.Time) (*bookings.Booking, error) {
	return nil, nil
}

func (f *fakeBookingStore) ConfirmBooking(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string, now time.Time) (*bookings.Booking, bool, error) {
	return nil, false, nil
}

func (f *fakeBookingStore) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string, now time.Time) (*bookings.CancelOutcome, error) {
	return nil, nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if booking, ok := f.byID[id]; ok {
		return booking, nil
	}
	return nil, bookings.ErrBookingNotFound
}

func (f *fakeBookingStore) GetByReference(ctx context.Context, reference string) (*bookings.Booking, error) {
	return nil, bookings.ErrBookingNotFound
}

func (f *fakeBookingStore) GetByPaymentID(ctx context.Context, paymentID string) (*bookings.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if booking, ok := f.byOrder[paymentID]; ok {
		return booking, nil
	}
	return nil, bookings.ErrBookingNotFound
}

func (f *fakeBookingStore) ListByUser(ctx context.Context, userID uuid.UUID, query bookings.BookingListQuery) (*bookings.PaginatedBookings, error) {
	return nil, nil
}

func (f *fakeBookingStore) SetPaymentOrder(ctx context.Context, bookingID uuid.UUID, orderID, gateway string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderSet[bookingID] = orderID
	if booking, ok := f.byID[bookingID]; ok {
		booking.PaymentID = orderID
		f.byOrder[orderID] = booking
	}
	return nil
}

func (f *fakeBookingStore) MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	return nil
}

func (f *fakeBookingStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeCoordinator struct {
	mu           sync.Mutex
	confirmCalls []string
	confirmErr   error
	failedCalls  int
}

func (f *fakeCoordinator) Create(ctx context.Context, userID uuid.UUID, req *bookings.CreateBookingRequest) (*bookings.Booking, error) {
	return nil, nil
}

func (f *fakeCoordinator) Confirm(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string) (*bookings.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	f.confirmCalls = append(f.confirmCalls, paymentID)
	return &bookings.ConfirmResult{Booking: &bookings.Booking{ID: bookingID}}, nil
}

func (f *fakeCoordinator) Cancel(ctx context.Context, userID, bookingID uuid.UUID, reason, idempotencyKey string) (*bookings.CancelResult, error) {
	return nil, nil
}

func (f *fakeCoordinator) GetBooking(ctx context.Context, bookingID, userID uuid.UUID, role string) (*bookings.Booking, error) {
	return nil, nil
}

func (f *fakeCoordinator) GetByReference(ctx context.Context, reference string, userID uuid.UUID, role string) (*bookings.Booking, error) {
	return nil, nil
}

func (f *fakeCoordinator) ListMyBookings(ctx context.Context, userID uuid.UUID, query bookings.BookingListQuery) (*bookings.PaginatedBookings, error) {
	return nil, nil
}

func (f *fakeCoordinator) MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	return nil
}

func (f *fakeCoordinator) SweepExpired(ctx context.Context) (int, error) { return 0, nil }

type paymentFixture struct {
	service     Service
	gateway     *fakeGateway
	store       *fakeBookingStore
	coordinator *fakeCoordinator
	log         *fakeWebhookLog
	booking     *bookings.Booking
	userID      uuid.UUID
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	userID := uuid.New()
	booking := &bookings.Booking{
		ID:            uuid.New(),
		Reference:     "BKG-2026-0824-100000-AAAA",
		EventID:       uuid.New(),
		UserID:        userID,
		Status:        bookings.BookingStatusPending,
		PaymentStatus: bookings.PaymentStatusPending,
		TotalAmount:   decimal.RequireFromString("500.00"),
		ExpiresAt:     time.Now().Add(15 * time.Minute),
	}

	store := newFakeBookingStore()
	store.byID[booking.ID] = booking

	gateway := &fakeGateway{}
	coordinator := &fakeCoordinator{}
	log := &fakeWebhookLog{}

	cfg := &config.Config{}
	cfg.Payment = config.PaymentConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: testWebhookSecret,
		Currency:      "INR",
	}
	cfg.Booking = config.BookingConfig{AmountTolerance: 0.01}

	return &paymentFixture{
		service:     NewService(gateway, log, store, coordinator, cfg),
		gateway:     gateway,
		store:       store,
		coordinator: coordinator,
		log:         log,
		booking:     booking,
		userID:      userID,
	}
}

func webhookBody(t *testing.T, event, orderID, paymentID string, amountMinor int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   amountMinor,
					"status":   "captured",
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := newPaymentFixture(t)

	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), order.AmountMinor)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, f.booking.Reference, order.BookingReference)
	assert.Equal(t, order.OrderID, f.store.orderSet[f.booking.ID])
}

func TestCreateOrderRejectsAmountMismatch(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "499.00",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, f.gateway.orders)
}

func TestCreateOrderToleratesRoundingDrift(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.01",
	})
	require.NoError(t, err)
}

func TestCreateOrderHidesOthersBookings(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.CreateOrder(context.Background(), uuid.New(), &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody(t, "payment.captured", "order_1", "pay_1", 50000)

	_, err := f.service.HandleWebhook(context.Background(), body, sign(body, "wrong-secret"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPaymentVerification, apperrors.KindOf(err))
	assert.Empty(t, f.coordinator.confirmCalls)
}

func TestHandleWebhookConfirmsOnCapture(t *testing.T) {
	f := newPaymentFixture(t)

	// Attach an order first, the way checkout does
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	body := webhookBody(t, "payment.captured", order.OrderID, "pay_123", 50000)
	result, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, []string{"pay_123"}, f.coordinator.confirmCalls)
}

func TestHandleWebhookRejectsPartialCapture(t *testing.T) {
	f := newPaymentFixture(t)
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	body := webhookBody(t, "payment.captured", order.OrderID, "pay_123", 25000)
	_, err = f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPaymentVerification, apperrors.KindOf(err))
	assert.Empty(t, f.coordinator.confirmCalls)
}

func TestHandleWebhookTransientFailureAsksForRetry(t *testing.T) {
	f := newPaymentFixture(t)
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	f.coordinator.confirmErr = apperrors.New(apperrors.KindInternal, "store unavailable")

	body := webhookBody(t, "payment.captured", order.OrderID, "pay_123", 50000)
	_, err = f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.Error(t, err)
	assert.True(t, apperrors.IsRetriable(err))
}

func TestHandleWebhookNonRetriableConfirmFailureIsAccepted(t *testing.T) {
	f := newPaymentFixture(t)
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	f.coordinator.confirmErr = apperrors.New(apperrors.KindConflict, "booking payment window has elapsed")

	body := webhookBody(t, "payment.captured", order.OrderID, "pay_123", 50000)
	result, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err, "expired bookings must not trigger provider redelivery")
	assert.False(t, result.Processed)
}

func TestHandleWebhookRedeliveryAfterConfirmationAcknowledges(t *testing.T) {
	f := newPaymentFixture(t)
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	body := webhookBody(t, "payment.captured", order.OrderID, "pay_123", 50000)
	_, err = f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)

	// Confirmation rewrites the stored id from the order to the payment
	f.store.mu.Lock()
	f.booking.Status = bookings.BookingStatusConfirmed
	f.booking.PaymentStatus = bookings.PaymentStatusCompleted
	f.booking.PaymentID = "pay_123"
	delete(f.store.byOrder, order.OrderID)
	f.store.byOrder["pay_123"] = f.booking
	f.store.mu.Unlock()

	result, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, []string{"pay_123"}, f.coordinator.confirmCalls, "redelivery must not confirm twice")
}

func TestHandleWebhookMarksFailedPayments(t *testing.T) {
	f := newPaymentFixture(t)
	order, err := f.service.CreateOrder(context.Background(), f.userID, &CreateOrderRequest{
		BookingID: f.booking.ID,
		Amount:    "500.00",
	})
	require.NoError(t, err)

	body := webhookBody(t, "payment.failed", order.OrderID, "pay_123", 50000)
	result, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, 1, f.coordinator.failedCalls)
}

func TestHandleWebhookIgnoresUnknownEvents(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody(t, "refund.created", "order_1", "pay_1", 50000)

	result, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)
	assert.False(t, result.Processed)
	assert.Empty(t, f.coordinator.confirmCalls)
}

func TestHandleWebhookAuditsEveryDelivery(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody(t, "payment.captured", "order_unknown", "pay_1", 50000)

	_, err := f.service.HandleWebhook(context.Background(), body, sign(body, testWebhookSecret))
	require.NoError(t, err)

	badBody := webhookBody(t, "payment.captured", "order_1", "pay_1", 50000)
	_, _ = f.service.HandleWebhook(context.Background(), badBody, "bogus")

	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	require.Len(t, f.log.events, 2)
	assert.True(t, f.log.events[0].Accepted)
	assert.False(t, f.log.events[1].Accepted)
}
