package seats

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupSeatRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	// Availability and lock inspection are public
	public := router.Group("/seats/:eventId/seat-types/:seatTypeId")
	{
		public.GET("/availability", controller.GetAvailability)
		public.GET("/locks/:seatLabel", controller.GetSeatLock)
		public.POST("/batch", controller.BatchGetSeats)
	}

	// Lock lifecycle requires an authenticated holder
	locks := router.Group("/seats/:eventId/seat-types/:seatTypeId")
	locks.Use(middleware.JWTAuth(cfg, gate))
	{
		locks.POST("/lock", controller.LockSeat)
		locks.POST("/release", controller.ReleaseSeat)
		locks.POST("/extend", controller.ExtendLock)
	}

	myLocks := router.Group("/seats/:eventId/my-locks")
	myLocks.Use(middleware.JWTAuth(cfg, gate))
	{
		myLocks.GET("", controller.GetMyLocks)
	}
}
