package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketly/api/routes"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/database"
	"ticketly/pkg/logger"
	"ticketly/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Populated via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		appLogger.InfoWithContext(ctx, "no .env file found, using system environment", nil)
	}

	cfg, err := config.Load()
	if err != nil {
		appLogger.ErrorWithContext(ctx, "invalid configuration", err, nil)
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.ErrorWithContext(ctx, "database initialization failed", err, nil)
		os.Exit(1)
	}
	defer db.Close()

	eventBus := bus.New()

	engine := gin.New()
	engine.Use(requestLogger(appLogger), gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Idempotency-Key", "X-Razorpay-Signature"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:                 cfg.RateLimit.Enabled,
			WindowDuration:          cfg.RateLimit.WindowDuration,
			DefaultRequests:         cfg.RateLimit.DefaultRequests,
			PublicRequests:          cfg.RateLimit.PublicRequests,
			BookingRequests:         cfg.RateLimit.BookingRequests,
			BookingCriticalRequests: cfg.RateLimit.BookingCriticalRequests,
			OrganizerRequests:       cfg.RateLimit.OrganizerRequests,
			HealthRequests:          cfg.RateLimit.HealthRequests,
			WhitelistedIPs:          cfg.RateLimit.WhitelistedIPs,
		})
		engine.Use(ratelimit.Middleware(limiter))
	}

	appRouter := routes.NewRouter(cfg, db, eventBus)
	appRouter.SetupRoutes(engine)

	// The seat lock Lua scripts are load-bearing for the acquire fast
	// path; preload failures are survivable (EVAL falls back on first use).
	preloadCtx, preloadCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := appRouter.LockStore.PreloadScripts(preloadCtx); err != nil {
		appLogger.ErrorWithContext(preloadCtx, "failed to preload redis scripts", err, nil)
	}
	preloadCancel()

	runCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go appRouter.Hub.Run(runCtx)

	if appRouter.TicketConsumer != nil {
		if err := appRouter.TicketConsumer.StartConsumers(runCtx, cfg.Kafka.WorkerCount); err != nil {
			appLogger.ErrorWithContext(runCtx, "failed to start ticket consumers", err, nil)
		}
	}

	appRouter.Sweeper.Start(runCtx)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.InfoWithContext(ctx, "server running", map[string]interface{}{
			"address":      cfg.GetServerAddress(),
			"health_check": fmt.Sprintf("http://localhost:%s/health", cfg.Port),
			"api_base":     cfg.GetAPIBasePath(),
			"version":      Version,
			"build_time":   BuildTime,
			"git_commit":   GitCommit,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.ErrorWithContext(ctx, "server failed", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.InfoWithContext(ctx, "shutting down", nil)

	// Drain HTTP first so no new work arrives, then stop the pipeline.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.ErrorWithContext(shutdownCtx, "forced shutdown", err, nil)
	}

	if appRouter.TicketConsumer != nil {
		if err := appRouter.TicketConsumer.Stop(); err != nil {
			appLogger.ErrorWithContext(ctx, "ticket consumer shutdown failed", err, nil)
		}
	}
	appRouter.Sweeper.Stop()
	stopBackground()
	if appRouter.TicketProducer != nil {
		if err := appRouter.TicketProducer.Close(); err != nil {
			appLogger.ErrorWithContext(ctx, "ticket producer close failed", err, nil)
		}
	}

	appLogger.InfoWithContext(ctx, "server exited gracefully", nil)
}

func requestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}
