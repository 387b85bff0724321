package payments

import (
	"io"
	"net/http"

	"ticketly/internal/shared/middleware"
	"ticketly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Razorpay-Signature"

type Controller interface {
	CreateOrder(c *gin.Context)
	HandleWebhook(c *gin.Context)
	VerifyOrder(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	order, err := ctrl.service.CreateOrder(c.Request.Context(), userID, &req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Payment order created", order, nil)
}

// HandleWebhook verifies over the exact bytes the provider sent; the
// body must not pass through any JSON middleware first.
func (ctrl *controller) HandleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Failed to read request body", nil, err.Error())
		return
	}

	result, err := ctrl.service.HandleWebhook(c.Request.Context(), rawBody, c.GetHeader(signatureHeader))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Webhook processed", result, nil)
}

func (ctrl *controller) VerifyOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if orderID == "" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Missing order ID", nil, nil)
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	status, err := ctrl.service.VerifyOrder(c.Request.Context(), orderID, userID, middleware.CurrentUserRole(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Order status retrieved", status, nil)
}
