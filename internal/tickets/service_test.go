package tickets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticketly/internal/bookings"
	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/config"
	"ticketly/internal/users"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicketRepo struct {
	mu        sync.Mutex
	byID      map[string]*Ticket
	upsertErr error
	emailedAt map[uuid.UUID]time.Time
	smsedAt   map[uuid.UUID]time.Time
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		byID:      make(map[string]*Ticket),
		emailedAt: make(map[uuid.UUID]time.Time),
		smsedAt:   make(map[uuid.UUID]time.Time),
	}
}

func (r *fakeTicketRepo) UpsertTicket(ctx context.Context, ticket *Ticket) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ticket
	r.byID[ticket.TicketID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Ticket
	for _, t := range r.byID {
		if t.BookingID == bookingID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) MarkEmailSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emailedAt[bookingID] = now
	return nil
}

func (r *fakeTicketRepo) MarkSMSSent(ctx context.Context, bookingID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.smsedAt[bookingID] = now
	return nil
}

func (r *fakeTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type fakeProgress struct {
	mu     sync.Mutex
	states map[string]JobState
	steps  map[string]int
	totals map[string]int
	errs   map[string]string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{
		states: make(map[string]JobState),
		steps:  make(map[string]int),
		totals: make(map[string]int),
		errs:   make(map[string]string),
	}
}

func (p *fakeProgress) Init(ctx context.Context, jobID string, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[jobID] = JobStateWaiting
	p.totals[jobID] = total
	return nil
}

func (p *fakeProgress) SetActive(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[jobID] = JobStateActive
	return nil
}

func (p *fakeProgress) Step(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[jobID]++
	return nil
}

func (p *fakeProgress) Complete(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[jobID] = JobStateCompleted
	return nil
}

func (p *fakeProgress) Fail(ctx context.Context, jobID string, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[jobID] = JobStateFailed
	p.errs[jobID] = cause.Error()
	return nil
}

func (p *fakeProgress) Get(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[jobID]
	if !ok {
		return nil, nil
	}
	percent := 0
	if p.totals[jobID] > 0 {
		percent = p.steps[jobID] * 100 / p.totals[jobID]
	}
	return &JobStatusResponse{JobID: jobID, State: state, ProgressPercent: percent, Error: p.errs[jobID]}, nil
}

func (p *fakeProgress) state(jobID string) JobState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[jobID]
}

type fakeEmailSender struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	calls int
}

func (s *fakeEmailSender) SendTickets(ctx context.Context, email, bookingRef string, tickets []Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, email)
	return nil
}

type fakeSMSSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSMSSender) SendTickets(ctx context.Context, phone, bookingRef string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone)
	return nil
}

type fakeProducer struct {
	mu       sync.Mutex
	enqueued []*Job
	fail     error
}

func (p *fakeProducer) Enqueue(ctx context.Context, job *Job) error {
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, job)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeBookingReader struct {
	bookings.Repository
	byID map[uuid.UUID]*bookings.Booking
}

func (r *fakeBookingReader) GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	if b, ok := r.byID[id]; ok {
		return b, nil
	}
	return nil, bookings.ErrBookingNotFound
}

type fakeUserRepo struct {
	byID map[uuid.UUID]*users.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, users.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, users.ErrUserNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user *users.User) error { return nil }

type ticketFixture struct {
	repo     *fakeTicketRepo
	progress *fakeProgress
	email    *fakeEmailSender
	sms      *fakeSMSSender
	cfg      *config.Config
	booking  *bookings.Booking
	user     *users.User
}

func newTicketFixture() *ticketFixture {
	userID := uuid.New()
	booking := &bookings.Booking{
		ID:        uuid.New(),
		Reference: "BKG-2026-0824-120000-A1B2",
		EventID:   uuid.New(),
		UserID:    userID,
		Status:    bookings.BookingStatusConfirmed,
		Seats: []bookings.BookingSeat{
			{SeatID: uuid.New(), SeatTypeID: uuid.New(), SeatLabel: "A1"},
			{SeatID: uuid.New(), SeatTypeID: uuid.New(), SeatLabel: "A2"},
		},
	}
	return &ticketFixture{
		repo:     newFakeTicketRepo(),
		progress: newFakeProgress(),
		email:    &fakeEmailSender{},
		sms:      &fakeSMSSender{},
		cfg: &config.Config{
			Email: config.EmailConfig{SMTPHost: "smtp.test", SMTPUsername: "mailer"},
			SMS:   config.SMSConfig{APIKey: "key"},
		},
		booking: booking,
		user:    &users.User{ID: userID, Email: "fan@example.com", Phone: "+919900112233"},
	}
}

func (f *ticketFixture) worker(producer Producer) *Worker {
	return NewWorker(f.repo, f.progress, f.email, f.sms, producer, f.cfg)
}

func (f *ticketFixture) service(producer Producer) Service {
	bookingRepo := &fakeBookingReader{byID: map[uuid.UUID]*bookings.Booking{f.booking.ID: f.booking}}
	userRepo := &fakeUserRepo{byID: map[uuid.UUID]*users.User{f.user.ID: f.user}}
	return NewService(f.repo, bookingRepo, userRepo, f.progress, producer, f.worker(producer))
}

func (f *ticketFixture) generateJob() *Job {
	seats := make([]JobSeat, 0, len(f.booking.Seats))
	for _, s := range f.booking.Seats {
		seats = append(seats, JobSeat{SeatID: s.SeatID, SeatTypeID: s.SeatTypeID, SeatLabel: s.SeatLabel})
	}
	return &Job{
		ID:         uuid.New().String(),
		Kind:       JobGenerateTickets,
		BookingID:  f.booking.ID,
		BookingRef: f.booking.Reference,
		EventID:    f.booking.EventID,
		UserID:     f.booking.UserID,
		Email:      f.user.Email,
		Phone:      f.user.Phone,
		Seats:      seats,
		CreatedAt:  time.Now(),
	}
}

func TestBuildTicketID(t *testing.T) {
	id := BuildTicketID("BKG-2026-0824-120000-A1B2", "A1")
	assert.Equal(t, "TKT-BKG-2026-0824-120000-A1B2-A1", id)
}

func TestRetryDelayDoublesPerAttempt(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryDelay(JobGenerateTickets, 1))
	assert.Equal(t, 10*time.Second, retryDelay(JobGenerateTickets, 2))
	assert.Equal(t, 20*time.Second, retryDelay(JobGenerateTickets, 3))
	assert.Equal(t, 40*time.Second, retryDelay(JobSendEmail, 3))
	assert.Equal(t, 60*time.Second, retryDelay(JobSendSMS, 3))
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name     string
		statuses []TicketStatus
		want     AggregateStatus
	}{
		{"no tickets yet", nil, AggregatePending},
		{"all generated", []TicketStatus{TicketStatusGenerated, TicketStatusGenerated}, AggregateReady},
		{"delivered counts as ready", []TicketStatus{TicketStatusDelivered, TicketStatusGenerated}, AggregateReady},
		{"one failure is partial", []TicketStatus{TicketStatusGenerated, TicketStatusFailed}, AggregatePartial},
		{"still working", []TicketStatus{TicketStatusGenerated, TicketStatusPending}, AggregateGenerating},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tickets := make([]Ticket, 0, len(tc.statuses))
			for _, s := range tc.statuses {
				tickets = append(tickets, Ticket{Status: s})
			}
			assert.Equal(t, tc.want, Aggregate(tickets))
		})
	}
}

func TestGenerateTicketsCreatesOnePerSeat(t *testing.T) {
	f := newTicketFixture()
	producer := &fakeProducer{}
	worker := f.worker(producer)

	job := f.generateJob()
	require.NoError(t, f.progress.Init(context.Background(), job.ID, len(job.Seats)))
	require.NoError(t, worker.HandleJob(context.Background(), job))

	assert.Equal(t, 2, f.repo.count())
	ticket := f.repo.byID["TKT-BKG-2026-0824-120000-A1B2-A1"]
	require.NotNil(t, ticket)
	assert.Equal(t, TicketStatusGenerated, ticket.Status)
	assert.NotEmpty(t, ticket.QRImage)
	assert.Contains(t, ticket.QRPayload, `"booking_ref":"BKG-2026-0824-120000-A1B2"`)
	assert.Equal(t, JobStateCompleted, f.progress.state(job.ID))
}

func TestGenerateTicketsChainsDeliveryJobs(t *testing.T) {
	f := newTicketFixture()
	producer := &fakeProducer{}
	worker := f.worker(producer)

	job := f.generateJob()
	require.NoError(t, worker.HandleJob(context.Background(), job))

	require.Len(t, producer.enqueued, 2)
	kinds := []JobKind{producer.enqueued[0].Kind, producer.enqueued[1].Kind}
	assert.Contains(t, kinds, JobSendEmail)
	assert.Contains(t, kinds, JobSendSMS)
	for _, chained := range producer.enqueued {
		assert.Equal(t, job.BookingID, chained.BookingID)
		assert.True(t, chained.NotBefore.After(time.Now()))
	}
}

func TestGenerateTicketsSkipsDisabledChannels(t *testing.T) {
	f := newTicketFixture()
	f.cfg.Email = config.EmailConfig{}
	f.cfg.SMS = config.SMSConfig{}
	producer := &fakeProducer{}
	worker := f.worker(producer)

	require.NoError(t, worker.HandleJob(context.Background(), f.generateJob()))
	assert.Empty(t, producer.enqueued)
}

func TestGenerateTicketsRerunIsIdempotent(t *testing.T) {
	f := newTicketFixture()
	worker := f.worker(&fakeProducer{})

	job := f.generateJob()
	require.NoError(t, worker.HandleJob(context.Background(), job))
	require.NoError(t, worker.HandleJob(context.Background(), job))

	assert.Equal(t, 2, f.repo.count())
}

func TestGenerateTicketsRecordsFailure(t *testing.T) {
	f := newTicketFixture()
	f.repo.upsertErr = errors.New("db down")
	worker := f.worker(&fakeProducer{})

	job := f.generateJob()
	require.NoError(t, f.progress.Init(context.Background(), job.ID, len(job.Seats)))
	require.Error(t, worker.HandleJob(context.Background(), job))
	assert.Equal(t, JobStateFailed, f.progress.state(job.ID))
}

func TestSendEmailMarksDelivery(t *testing.T) {
	f := newTicketFixture()
	worker := f.worker(&fakeProducer{})
	require.NoError(t, worker.HandleJob(context.Background(), f.generateJob()))

	emailJob := f.generateJob()
	emailJob.Kind = JobSendEmail
	require.NoError(t, worker.HandleJob(context.Background(), emailJob))

	assert.Equal(t, []string{"fan@example.com"}, f.email.sent)
	_, marked := f.repo.emailedAt[f.booking.ID]
	assert.True(t, marked)
}

func TestSendEmailFailsBeforeTicketsExist(t *testing.T) {
	f := newTicketFixture()
	worker := f.worker(&fakeProducer{})

	emailJob := f.generateJob()
	emailJob.Kind = JobSendEmail
	err := worker.HandleJob(context.Background(), emailJob)
	require.Error(t, err)
	assert.Equal(t, 0, f.email.calls)
}

func TestSendSMSMarksDelivery(t *testing.T) {
	f := newTicketFixture()
	worker := f.worker(&fakeProducer{})
	require.NoError(t, worker.HandleJob(context.Background(), f.generateJob()))

	smsJob := f.generateJob()
	smsJob.Kind = JobSendSMS
	require.NoError(t, worker.HandleJob(context.Background(), smsJob))

	assert.Equal(t, []string{"+919900112233"}, f.sms.sent)
	_, marked := f.repo.smsedAt[f.booking.ID]
	assert.True(t, marked)
}

func TestDispatchEnqueuesGenerationJob(t *testing.T) {
	f := newTicketFixture()
	producer := &fakeProducer{}
	svc := f.service(producer)

	jobID, err := svc.DispatchGeneration(context.Background(), f.booking)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	require.Len(t, producer.enqueued, 1)
	job := producer.enqueued[0]
	assert.Equal(t, JobGenerateTickets, job.Kind)
	assert.Equal(t, "fan@example.com", job.Email)
	assert.Len(t, job.Seats, 2)
	assert.Equal(t, f.booking.ID.String(), job.PartitionKey())
}

func TestDispatchFallsBackInlineWhenBrokerDown(t *testing.T) {
	f := newTicketFixture()
	producer := &fakeProducer{fail: errors.New("broker unreachable")}
	svc := f.service(producer)

	jobID, err := svc.DispatchGeneration(context.Background(), f.booking)
	require.NoError(t, err)
	assert.Empty(t, jobID)
	assert.Equal(t, 2, f.repo.count())
}

func TestGetTicketsHidesOthersBookings(t *testing.T) {
	f := newTicketFixture()
	svc := f.service(&fakeProducer{})

	_, err := svc.GetTickets(context.Background(), f.booking.ID, uuid.New(), "USER")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	resp, err := svc.GetTickets(context.Background(), f.booking.ID, uuid.New(), string(users.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, AggregatePending, resp.AggregateStatus)
}

func TestGetTicketsAggregatesStatus(t *testing.T) {
	f := newTicketFixture()
	svc := f.service(&fakeProducer{})

	require.NoError(t, f.worker(nil).HandleJob(context.Background(), f.generateJob()))

	resp, err := svc.GetTickets(context.Background(), f.booking.ID, f.booking.UserID, "USER")
	require.NoError(t, err)
	assert.Len(t, resp.Tickets, 2)
	assert.Equal(t, AggregateReady, resp.AggregateStatus)
}

func TestGetJobStatusUnknownJob(t *testing.T) {
	f := newTicketFixture()
	svc := f.service(&fakeProducer{})

	_, err := svc.GetJobStatus(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
