package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/bus"
	"ticketly/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// actionTimeout bounds a client-originated mutation.
	actionTimeout = 5 * time.Second
)

// Client is one websocket connection. userID is uuid.Nil for anonymous
// viewers, which may receive broadcasts but not originate mutations.
type Client struct {
	id      string
	userID  uuid.UUID
	hub     *Hub
	actions *ActionRouter
	conn    *websocket.Conn
	send    chan []byte
	logger  *logger.Logger

	// mu guards send against the shutdown race: the hub closes the
	// queue while the read pump may still be answering a request.
	mu     sync.Mutex
	closed bool
}

// clientMessage is an inbound mutation request from an authenticated
// client.
type clientMessage struct {
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type actionResponse struct {
	RequestID string      `json:"request_id,omitempty"`
	Action    string      `json:"action"`
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func newClient(hub *Hub, actions *ActionRouter, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		id:      uuid.New().String(),
		userID:  userID,
		hub:     hub,
		actions: actions,
		conn:    conn,
		send:    make(chan []byte, 64),
		logger:  logger.GetDefault(),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.DebugWithContext(context.Background(), "websocket closed unexpectedly",
					map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.respondError(msg, apperrors.New(apperrors.KindValidation, "malformed message"))
		return
	}

	if c.userID == uuid.Nil {
		c.respondError(msg, apperrors.New(apperrors.KindAuthRequired, "authentication required to originate events"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	// The origin tag lets the hub skip echoing this mutation back; the
	// originator gets the direct response instead.
	ctx = bus.WithOrigin(ctx, c.id)

	data, err := c.actions.Dispatch(ctx, c.userID, &msg)
	if err != nil {
		c.respondError(msg, err)
		return
	}
	c.respond(actionResponse{RequestID: msg.RequestID, Action: msg.Action, Status: "ok", Data: data})
}

func (c *Client) respondError(msg clientMessage, err error) {
	c.respond(actionResponse{
		RequestID: msg.RequestID,
		Action:    msg.Action,
		Status:    "error",
		Error:     apperrors.MessageOf(err),
	})
}

func (c *Client) respond(resp actionResponse) {
	data, err := json.Marshal(envelope{Type: "response", Payload: resp})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues a frame without blocking. Frames are dropped when the
// queue is full or already shut down.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue exactly once. Only the hub calls this.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
