package routes

import (
	"context"
	"net/http"
	"time"

	"ticketly/internal/auth"
	"ticketly/internal/bookings"
	"ticketly/internal/events"
	"ticketly/internal/idempotency"
	"ticketly/internal/payments"
	"ticketly/internal/realtime"
	"ticketly/internal/seats"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/database"
	"ticketly/internal/sweeper"
	"ticketly/internal/tickets"
	"ticketly/internal/users"
	"ticketly/pkg/cache"
	"ticketly/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router wires every domain package together. Construction order
// follows the dependency graph: stores first, then services, then the
// HTTP surface. Background components (consumer, sweeper, hub) are
// exposed for main to start and stop.
type Router struct {
	config *config.Config
	db     *database.DB
	bus    bus.Bus
	logger *logger.Logger

	// Exposed to main for lifecycle management.
	Hub            *realtime.Hub
	TicketProducer tickets.Producer
	TicketConsumer tickets.Consumer
	TicketWorker   *tickets.Worker
	Sweeper        *sweeper.Sweeper
	LockStore      seats.LockStore
}

func NewRouter(cfg *config.Config, db *database.DB, eventBus bus.Bus) *Router {
	return &Router{
		config: cfg,
		db:     db,
		bus:    eventBus,
		logger: logger.GetDefault(),
	}
}

// SetupRoutes builds all services and mounts the HTTP surface.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	pg := r.db.GetPostgreSQL()
	rdb := r.db.GetRedisClient()

	r.setupHealthRoutes(engine)

	// Shared infrastructure
	gate := auth.NewGate(auth.NewRepository(pg), rdb)
	cacheSvc := cache.NewService(rdb)
	idemSvc := idempotency.NewService(idempotency.NewRepository(pg))
	userRepo := users.NewRepository(pg)

	// Events (catalog reads and organizer writes)
	eventSvc := events.NewService(events.NewRepository(pg), cacheSvc, r.bus)

	// Seat locking
	r.LockStore = seats.NewLockStore(rdb)
	availability := seats.NewAvailability(rdb, eventSvc)
	seatSvc := seats.NewService(seats.NewRepository(pg), r.LockStore, availability, eventSvc, r.bus)

	// Ticket pipeline. The producer is optional: without a broker the
	// dispatcher generates inline and the consumer is not started.
	ticketRepo := tickets.NewRepository(pg)
	progress := tickets.NewProgressStore(rdb)
	producer, err := tickets.NewProducer(r.config)
	if err != nil {
		r.logger.ErrorWithContext(context.Background(), "kafka producer unavailable, ticket jobs run inline", err, nil)
		producer = nil
	}
	r.TicketProducer = producer
	r.TicketWorker = tickets.NewWorker(ticketRepo, progress,
		tickets.NewEmailSender(r.config), tickets.NewSMSSender(r.config), producer, r.config)

	// Bookings
	bookingRepo := bookings.NewRepository(pg)
	ticketSvc := tickets.NewService(ticketRepo, bookingRepo, userRepo, progress, producer, r.TicketWorker)
	bookingSvc := bookings.NewService(bookingRepo, idemSvc, availability, r.LockStore,
		eventSvc, cacheSvc, r.bus, ticketSvc, r.config)

	// Payments
	gateway := payments.NewRazorpayGateway(r.config.Payment.KeyID, r.config.Payment.KeySecret)
	paymentSvc := payments.NewService(gateway, payments.NewRepository(pg), bookingRepo, bookingSvc, r.config)

	// Realtime fan-out
	r.Hub = realtime.NewHub()
	r.Hub.AttachBus(r.bus)
	realtimeCtrl := realtime.NewController(r.Hub, realtime.NewActionRouter(seatSvc))

	if producer != nil {
		consumer, consumerErr := tickets.NewConsumer(r.config, r.TicketWorker)
		if consumerErr != nil {
			r.logger.ErrorWithContext(context.Background(), "kafka consumer unavailable", consumerErr, nil)
		} else {
			r.TicketConsumer = consumer
		}
	}

	r.Sweeper = sweeper.New(seatSvc, bookingSvc, auth.NewRepository(pg), idemSvc, r.config)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		events.SetupEventRoutes(api, events.NewController(eventSvc), r.config, gate)
		seats.SetupSeatRoutes(api, seats.NewController(seatSvc), r.config, gate)
		bookings.SetupBookingRoutes(api, bookings.NewController(bookingSvc), r.config, gate)
		payments.SetupPaymentRoutes(api, payments.NewController(paymentSvc), r.config, gate)
		tickets.SetupTicketRoutes(api, tickets.NewController(ticketSvc), r.config, gate)
		realtime.SetupRealtimeRoutes(api, realtimeCtrl, r.config, gate)
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "ticketly",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "ticketly",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "version": r.config.APIVersion})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}
