package payments

import (
	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupPaymentRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config, gate auth.Gate) {
	payments := router.Group("/payments")
	{
		// The provider authenticates with its signature, not a JWT
		payments.POST("/webhook", controller.HandleWebhook)
	}

	authed := router.Group("/payments")
	authed.Use(middleware.JWTAuth(cfg, gate))
	{
		authed.POST("/order", controller.CreateOrder)
		authed.GET("/verify/:orderId", controller.VerifyOrder)
	}
}
