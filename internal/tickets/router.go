package tickets

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupTicketRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	tickets := router.Group("/tickets")
	tickets.Use(middleware.JWTAuth(cfg, gate))
	{
		tickets.GET("/booking/:bookingId", controller.GetTickets)
		tickets.GET("/job/:jobId", controller.GetJobStatus)
	}
}
