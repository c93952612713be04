package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	// Unique client identifier
	ID string

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Hub reference
	hub *Hub

	logger *logrus.Logger

	ConnectedAt time.Time `json:"connected_at"`

	// Dashboard subscriptions and the dropped flag share the mutex
	mu         sync.RWMutex
	dashboards map[string]bool
	closed     bool
}

// HandleWebSocket upgrades the request and registers the client.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         hub,
		logger:      hub.logger,
		ConnectedAt: time.Now(),
		dashboards:  make(map[string]bool),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// HandleWebSocketGin is a Gin-compatible wrapper for HandleWebSocket
func HandleWebSocketGin(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleWebSocket(hub, c.Writer, c.Request)
	}
}

// trySend queues a payload without blocking. Returns false when the
// client's buffer is full or the hub has already dropped the client,
// which the hub treats as a dead subscriber. The read lock keeps the
// send channel open for the duration of the send; closeSend takes the
// write lock, so a drop can never race an in-progress send.
func (c *Client) trySend(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend marks the client dropped and closes its send channel so
// writePump shuts the connection down. Safe to call twice; after it
// returns, trySend reports failure instead of writing.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the hub
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal WebSocket message")
		return
	}

	switch msg.Type {
	case MessageTypeSubscribeDashboard:
		if id, ok := msg.Data["dashboard_id"].(string); ok && id != "" {
			c.Subscribe(id)
			ack := Message{Type: MessageTypeSubscribed, Data: map[string]interface{}{"dashboard_id": id}}
			c.trySend(ack.ToJSON())
		}
	case MessageTypeUnsubscribeDashboard:
		if id, ok := msg.Data["dashboard_id"].(string); ok {
			c.Unsubscribe(id)
			ack := Message{Type: MessageTypeUnsubscribed, Data: map[string]interface{}{"dashboard_id": id}}
			c.trySend(ack.ToJSON())
		}
	case MessageTypePing:
		pong := Message{Type: MessageTypePong, Data: map[string]interface{}{}}
		c.trySend(pong.ToJSON())
	default:
		c.logger.WithField("message_type", msg.Type).Warn("Unknown WebSocket message type")
	}
}

// Subscribe adds a dashboard to the client's subscription set.
func (c *Client) Subscribe(dashboardID string) {
	c.mu.Lock()
	c.dashboards[dashboardID] = true
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_id":    c.ID,
		"dashboard_id": dashboardID,
	}).Info("Client subscribed to dashboard")
}

// Unsubscribe removes a dashboard subscription; safe to call twice.
func (c *Client) Unsubscribe(dashboardID string) {
	c.mu.Lock()
	delete(c.dashboards, dashboardID)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_id":    c.ID,
		"dashboard_id": dashboardID,
	}).Info("Client unsubscribed from dashboard")
}

// IsSubscribed checks whether the client follows a dashboard.
func (c *Client) IsSubscribed(dashboardID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dashboards[dashboardID]
}
