package realtime

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRealtimeRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	router.GET("/ws", middleware.OptionalAuth(cfg, gate), controller.ServeWS)
}
