package bookings

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes wires the booking lifecycle. There is no public
// confirm route: confirmation is driven by the payment webhook only.
func SetupBookingRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	bookings := router.Group("/bookings")
	bookings.Use(middleware.JWTAuth(cfg, gate))
	{
		bookings.POST("", controller.CreateBooking)
		bookings.GET("/my", controller.GetMyBookings)
		bookings.GET("/reference/:reference", controller.GetBookingByReference)
		bookings.GET("/:bookingId", controller.GetBooking)
		bookings.POST("/:bookingId/cancel", controller.CancelBooking)
	}
}
