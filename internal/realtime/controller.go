package realtime

import (
	"net/http"

	"ticketly/internal/shared/middleware"
	"ticketly/internal/shared/utils/response"
	"ticketly/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	ServeWS(c *gin.Context)
}

type controller struct {
	hub     *Hub
	actions *ActionRouter
	logger  *logger.Logger
}

func NewController(hub *Hub, actions *ActionRouter) Controller {
	return &controller{hub: hub, actions: actions, logger: logger.GetDefault()}
}

var upgrader = websocketUpgrader()

// ServeWS upgrades the connection and starts the pumps. Anonymous
// clients are accepted; only authenticated ones may originate actions.
func (ctrl *controller) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Websocket upgrade failed", nil, err.Error())
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	client := newClient(ctrl.hub, ctrl.actions, conn, userID)
	ctrl.hub.register <- client

	ctrl.logger.DebugWithContext(c.Request.Context(), "websocket client connected", map[string]interface{}{
		"client_id":     client.id,
		"authenticated": userID != uuid.Nil,
	})

	go client.writePump()
	go client.readPump()
}
