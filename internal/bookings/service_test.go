package bookings

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ticketly/internal/events"
	"ticketly/internal/idempotency"
	"ticketly/internal/seats"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBookingRepo struct {
	mu sync.Mutex

	createErr     error
	created       *Booking
	confirmErr    error
	confirmResult *Booking
	alreadyDone   bool
	confirmCalls  int
	cancelErr     error
	cancelOutcome *CancelOutcome
	cancelCalls   int
	expiredIDs    []uuid.UUID
	byID          map[uuid.UUID]*Booking
	lastListQuery BookingListQuery
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{byID: make(map[uuid.UUID]*Booking)}
}

func (f *fakeBookingRepo) CreateBooking(ctx context.Context, userID, eventID uuid.UUID, selections []SeatSelection, expiresAt time.Time) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	reference, _ := GenerateReference(time.Now())
	booking := &Booking{
		ID:            uuid.New(),
		Reference:     reference,
		EventID:       eventID,
		UserID:        userID,
		Status:        BookingStatusPending,
		PaymentStatus: PaymentStatusPending,
		TotalAmount:   decimal.NewFromInt(int64(len(selections)) * 500),
		ExpiresAt:     expiresAt,
	}
	for _, sel := range selections {
		booking.Seats = append(booking.Seats, BookingSeat{
			BookingID:  booking.ID,
			SeatID:     uuid.New(),
			SeatTypeID: sel.SeatTypeID,
			SeatLabel:  sel.SeatLabel,
			PricePaid:  decimal.NewFromInt(500),
		})
	}
	f.created = booking
	f.byID[booking.ID] = booking
	return booking, nil
}

func (f *fakeBookingRepo) ConfirmBooking(ctx context.Context, bookingID uuid.UUID, paymentID, gateway string, now time.Time) (*Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, false, f.confirmErr
	}
	return f.confirmResult, f.alreadyDone, nil
}

func (f *fakeBookingRepo) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string, now time.Time) (*CancelOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelOutcome, nil
}

func (f *fakeBookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if booking, ok := f.byID[id]; ok {
		return booking, nil
	}
	return nil, ErrBookingNotFound
}

func (f *fakeBookingRepo) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, booking := range f.byID {
		if booking.Reference == reference {
			return booking, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (f *fakeBookingRepo) GetByPaymentID(ctx context.Context, paymentID string) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, booking := range f.byID {
		if booking.PaymentID == paymentID {
			return booking, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (f *fakeBookingRepo) ListByUser(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastListQuery = query
	return &PaginatedBookings{Page: 1, Limit: 10}, nil
}

func (f *fakeBookingRepo) SetPaymentOrder(ctx context.Context, bookingID uuid.UUID, orderID, gateway string) error {
	return nil
}

func (f *fakeBookingRepo) MarkPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	return nil
}

func (f *fakeBookingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return f.expiredIDs, nil
}

// memIdem is an in-memory idempotency.Service: the first Begin for a
// key proceeds, a Begin after Complete replays the snapshot, a Begin
// while still pending reports in-flight.
type memIdem struct {
	mu        sync.Mutex
	pending   map[string]bool
	snapshots map[string][]byte
}

func newMemIdem() *memIdem {
	return &memIdem{pending: make(map[string]bool), snapshots: make(map[string][]byte)}
}

func (m *memIdem) Begin(ctx context.Context, key, operationType, resourceID string, userID uuid.UUID) (*idempotency.Outcome, error) {
	if key == "" {
		return &idempotency.Outcome{Proceed: true}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot, done := m.snapshots[key]; done {
		return &idempotency.Outcome{Snapshot: snapshot}, nil
	}
	if m.pending[key] {
		return nil, apperrors.New(apperrors.KindInFlight, "operation already in progress")
	}
	m.pending[key] = true
	return &idempotency.Outcome{Proceed: true}, nil
}

func (m *memIdem) Complete(ctx context.Context, key string, response interface{}) error {
	if key == "" {
		return nil
	}
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.snapshots[key] = data
	return nil
}

func (m *memIdem) Fail(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	return nil
}

func (m *memIdem) DeleteExpired(ctx context.Context, now time.Time) (int64, error) { return 0, nil }

type fakeTicketDispatcher struct {
	mu    sync.Mutex
	calls int
	jobID string
}

func (f *fakeTicketDispatcher) DispatchGeneration(ctx context.Context, booking *Booking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.jobID, nil
}

func (f *fakeTicketDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string, dest interface{}) error { return nil }
func (nopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (nopCache) Delete(ctx context.Context, key string) error          { return nil }
func (nopCache) DeletePattern(ctx context.Context, pattern string) error { return nil }
func (nopCache) Exists(ctx context.Context, key string) bool           { return false }
func (nopCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetcher func() (interface{}, error), dest interface{}) error {
	return nil
}
func (nopCache) Ping(ctx context.Context) error { return nil }

type nopLockStore struct{}

func (nopLockStore) Acquire(ctx context.Context, eventID, seatTypeID, seatLabel string, lock *seats.Lock, ttl time.Duration) (bool, error) {
	return true, nil
}
func (nopLockStore) Release(ctx context.Context, eventID, seatTypeID, seatLabel, userID string) (bool, error) {
	return true, nil
}
func (nopLockStore) Extend(ctx context.Context, eventID, seatTypeID, seatLabel, userID string, newExpiresAt time.Time) (bool, error) {
	return true, nil
}
func (nopLockStore) Get(ctx context.Context, eventID, seatTypeID, seatLabel string) (*seats.Lock, error) {
	return nil, nil
}
func (nopLockStore) PreloadScripts(ctx context.Context) error { return nil }

type nopAvailability struct{}

func (nopAvailability) Get(ctx context.Context, eventID, seatTypeID uuid.UUID) (int, error) {
	return 0, nil
}
func (nopAvailability) Decrement(ctx context.Context, eventID, seatTypeID uuid.UUID)            {}
func (nopAvailability) Increment(ctx context.Context, eventID, seatTypeID uuid.UUID, delta int) {}
func (nopAvailability) Invalidate(ctx context.Context, eventID uuid.UUID)                       {}
func (nopAvailability) InvalidateType(ctx context.Context, eventID, seatTypeID uuid.UUID)       {}

type stubReader struct {
	event *events.Event
}

func (s *stubReader) GetEventRecord(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	if s.event == nil || s.event.ID != id {
		return nil, apperrors.New(apperrors.KindNotFound, "event not found")
	}
	return s.event, nil
}

func (s *stubReader) GetSeatTypeRecord(ctx context.Context, id uuid.UUID) (*events.SeatType, error) {
	return nil, apperrors.New(apperrors.KindNotFound, "seat type not found")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type bookingFixture struct {
	service    Service
	repo       *fakeBookingRepo
	idem       *memIdem
	dispatcher *fakeTicketDispatcher
	publisher  *recordingPublisher
	eventID    uuid.UUID
	seatTypeID uuid.UUID
	userID     uuid.UUID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	eventID := uuid.New()
	repo := newFakeBookingRepo()
	idem := newMemIdem()
	dispatcher := &fakeTicketDispatcher{jobID: "job-1"}
	publisher := &recordingPublisher{}

	reader := &stubReader{
		event: &events.Event{
			ID:        eventID,
			Status:    events.EventStatusPublished,
			StartDate: time.Now().Add(48 * time.Hour),
		},
	}

	cfg := &config.Config{}
	cfg.Booking = config.BookingConfig{PaymentWindow: 15 * time.Minute, ReferenceRetry: 5, AmountTolerance: 0.01}
	cfg.Sweeper = config.SweeperConfig{BatchSize: 100}

	svc := NewService(repo, idem, nopAvailability{}, nopLockStore{}, reader, nopCache{}, publisher, dispatcher, cfg)

	return &bookingFixture{
		service:    svc,
		repo:       repo,
		idem:       idem,
		dispatcher: dispatcher,
		publisher:  publisher,
		eventID:    eventID,
		seatTypeID: uuid.New(),
		userID:     uuid.New(),
	}
}

func TestCreateBookingHappyPath(t *testing.T) {
	f := newBookingFixture(t)

	booking, err := f.service.Create(context.Background(), f.userID, &CreateBookingRequest{
		EventID: f.eventID,
		Seats: []SeatSelection{
			{SeatLabel: "a1", SeatTypeID: f.seatTypeID},
			{SeatLabel: "A2", SeatTypeID: f.seatTypeID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, BookingStatusPending, booking.Status)
	assert.Equal(t, PaymentStatusPending, booking.PaymentStatus)
	assert.Len(t, booking.Seats, 2)
	assert.Equal(t, "A1", booking.Seats[0].SeatLabel)
	assert.Regexp(t, `^BKG-\d{4}-\d{4}-\d{6}-[0-9A-F]{4}$`, booking.Reference)

	window := time.Until(booking.ExpiresAt)
	assert.InDelta(t, (15 * time.Minute).Seconds(), window.Seconds(), 5)
}

func TestCreateBookingRejectsDuplicateSeats(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Create(context.Background(), f.userID, &CreateBookingRequest{
		EventID: f.eventID,
		Seats: []SeatSelection{
			{SeatLabel: "A1", SeatTypeID: f.seatTypeID},
			{SeatLabel: "a1", SeatTypeID: f.seatTypeID},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCreateBookingMapsStaleLocks(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.createErr = ErrStaleLocks

	_, err := f.service.Create(context.Background(), f.userID, &CreateBookingRequest{
		EventID: f.eventID,
		Seats:   []SeatSelection{{SeatLabel: "A1", SeatTypeID: f.seatTypeID}},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindStale, apperrors.KindOf(err))
}

func TestCreateBookingRejectsUnknownEvent(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Create(context.Background(), f.userID, &CreateBookingRequest{
		EventID: uuid.New(),
		Seats:   []SeatSelection{{SeatLabel: "A1", SeatTypeID: f.seatTypeID}},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestConfirmDispatchesTickets(t *testing.T) {
	f := newBookingFixture(t)
	bookingID := uuid.New()
	f.repo.confirmResult = &Booking{
		ID:            bookingID,
		Reference:     "BKG-2026-0824-100000-AAAA",
		EventID:       f.eventID,
		UserID:        f.userID,
		Status:        BookingStatusConfirmed,
		PaymentStatus: PaymentStatusCompleted,
		Seats: []BookingSeat{
			{SeatTypeID: f.seatTypeID, SeatLabel: "A1"},
		},
	}

	result, err := f.service.Confirm(context.Background(), bookingID, "pay_123", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.TicketJobID)
	assert.Equal(t, 1, f.dispatcher.callCount())

	require.Eventually(t, func() bool {
		return f.publisher.has(bus.EventBookingConfirmed) && f.publisher.has(bus.EventSeatBooked)
	}, time.Second, 10*time.Millisecond)
}

func TestConfirmIdempotentRedeliverySkipsDispatch(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.confirmResult = &Booking{ID: uuid.New(), Status: BookingStatusConfirmed, PaymentStatus: PaymentStatusCompleted}
	f.repo.alreadyDone = true

	result, err := f.service.Confirm(context.Background(), f.repo.confirmResult.ID, "pay_123", "razorpay")
	require.NoError(t, err)
	assert.Empty(t, result.TicketJobID)
	assert.Equal(t, 0, f.dispatcher.callCount())
}

func TestCancelReplaysCachedResult(t *testing.T) {
	f := newBookingFixture(t)
	bookingID := uuid.New()
	f.repo.cancelOutcome = &CancelOutcome{
		Booking: &Booking{
			ID:            bookingID,
			EventID:       f.eventID,
			UserID:        f.userID,
			Status:        BookingStatusCancelled,
			PaymentStatus: PaymentStatusRefunded,
		},
		RestoredByType: map[uuid.UUID]int{f.seatTypeID: 2},
		ReleasedSeats: []BookingSeat{
			{SeatTypeID: f.seatTypeID, SeatLabel: "A1"},
			{SeatTypeID: f.seatTypeID, SeatLabel: "A2"},
		},
	}

	first, err := f.service.Cancel(context.Background(), f.userID, bookingID, "changed plans", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.SeatsReleased)
	assert.Equal(t, 1, f.repo.cancelCalls)

	second, err := f.service.Cancel(context.Background(), f.userID, bookingID, "changed plans", "key-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.repo.cancelCalls, "replay must not hit the repository again")
}

func TestCancelInFlight(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.cancelErr = ErrBookingInFlight

	_, err := f.service.Cancel(context.Background(), f.userID, uuid.New(), "", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInFlight, apperrors.KindOf(err))
}

func TestCancelRefusesConfirmedBooking(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.cancelErr = ErrAlreadyConfirmed

	_, err := f.service.Cancel(context.Background(), f.userID, uuid.New(), "", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestGetBookingHidesOthersBookings(t *testing.T) {
	f := newBookingFixture(t)
	booking, err := f.service.Create(context.Background(), f.userID, &CreateBookingRequest{
		EventID: f.eventID,
		Seats:   []SeatSelection{{SeatLabel: "A1", SeatTypeID: f.seatTypeID}},
	})
	require.NoError(t, err)

	_, err = f.service.GetBooking(context.Background(), booking.ID, uuid.New(), "USER")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	got, err := f.service.GetBooking(context.Background(), booking.ID, uuid.New(), "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
}

func TestConfirmExpiredBookingIsStale(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.confirmErr = ErrBookingExpired

	_, err := f.service.Confirm(context.Background(), uuid.New(), "pay_1", "razorpay")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindStale, apperrors.KindOf(err))
}

func TestListMyBookingsForwardsStatusFilter(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.ListMyBookings(context.Background(), uuid.New(),
		BookingListQuery{Status: "confirmed", Page: 2, Limit: 5})
	require.NoError(t, err)

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.Equal(t, "confirmed", f.repo.lastListQuery.Status)
	assert.Equal(t, 2, f.repo.lastListQuery.Page)
}

func TestSweepExpiredCancelsPendingBookings(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.expiredIDs = []uuid.UUID{uuid.New(), uuid.New()}
	f.repo.cancelOutcome = &CancelOutcome{
		Booking: &Booking{
			ID:            uuid.New(),
			EventID:       f.eventID,
			Status:        BookingStatusCancelled,
			PaymentStatus: PaymentStatusRefunded,
		},
		RestoredByType: map[uuid.UUID]int{},
	}

	expired, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, 2, f.repo.cancelCalls)
}

func TestGenerateReferenceFormat(t *testing.T) {
	now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
	reference, err := GenerateReference(now)
	require.NoError(t, err)
	assert.Regexp(t, `^BKG-2026-0824-153000-[0-9A-F]{4}$`, reference)

	other, err := GenerateReference(now)
	require.NoError(t, err)
	assert.Len(t, other, len(reference))
}
