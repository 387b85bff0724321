package events

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupEventRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	// Public browsing
	publicEvents := router.Group("/events")
	{
		publicEvents.GET("", controller.GetAllEvents)
		publicEvents.GET("/:eventId", controller.GetEvent)
	}

	// Organizer event management
	organizerEvents := router.Group("/events")
	organizerEvents.Use(middleware.JWTAuth(cfg, gate), middleware.RequireOrganizer())
	{
		organizerEvents.POST("", controller.CreateEvent)
		organizerEvents.PUT("/:eventId", controller.UpdateEvent)
		organizerEvents.DELETE("/:eventId", controller.DeleteEvent)
	}

	// Seat-type management lives under the seats prefix
	seatTypes := router.Group("/seats/:eventId/seat-types")
	seatTypes.Use(middleware.JWTAuth(cfg, gate), middleware.RequireOrganizer())
	{
		seatTypes.POST("", controller.CreateSeatType)
		seatTypes.PUT("/:seatTypeId", controller.UpdateSeatType)
		seatTypes.DELETE("/:seatTypeId", controller.DeleteSeatType)
	}
}
