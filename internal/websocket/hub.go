package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub tracks the set of active clients and their per-dashboard
// subscriptions, and fans events out to every live subscriber of a
// dashboard. One dead subscriber never blocks delivery to the rest: a
// client whose send buffer is full or closed is dropped from the set.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Dashboard-scoped publishes
	publish chan dashboardMessage

	// Stop signal for Run
	stop chan struct{}

	logger *logrus.Logger

	mu sync.RWMutex

	stats *HubStats
}

type dashboardMessage struct {
	dashboardID string
	payload     []byte
	kind        string
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan dashboardMessage, 256),
		stop:       make(chan struct{}),
		logger:     logger,
		stats: &HubStats{
			LastActivity: time.Now(),
		},
	}
}

// Run handles client registration/unregistration and event fan-out.
// Publishes for one dashboard are drained by this single goroutine, so
// subscribers see events in Publish call order.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.publish:
			h.fanOut(msg)

		case <-ticker.C:
			h.sendHeartbeat()

		case <-h.stop:
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	close(h.stop)
}

// Publish queues an event for every subscriber of a dashboard. Delivery
// failures are handled inside the hub and never surface to the caller.
// When the queue is full the call blocks until the hub catches up;
// callers are pipeline goroutines, never the timer wheel, so
// backpressure here is preferable to dropping the event for every
// subscriber of the dashboard. A stopped hub discards the event.
func (h *Hub) Publish(dashboardID string, message Message) {
	msg := dashboardMessage{
		dashboardID: dashboardID,
		payload:     message.ToJSON(),
		kind:        message.Type,
	}
	select {
	case h.publish <- msg:
	case <-h.stop:
		h.logger.WithField("dashboard_id", dashboardID).Debug("Hub stopped, event discarded")
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": h.stats.ConnectedClients,
	}).Info("WebSocket client connected")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.trySend(welcome.ToJSON())
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()

		h.logger.WithFields(logrus.Fields{
			"client_id":         client.ID,
			"connected_clients": len(h.clients),
		}).Info("WebSocket client disconnected")
	}
}

// fanOut delivers one payload to every subscriber of the dashboard.
// Clients that cannot accept the write are removed on the spot.
func (h *Hub) fanOut(msg dashboardMessage) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.IsSubscribed(msg.dashboardID) {
			subscribers = append(subscribers, client)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range subscribers {
		if client.trySend(msg.payload) {
			sent++
			continue
		}
		h.logger.WithFields(logrus.Fields{
			"client_id":    client.ID,
			"dashboard_id": msg.dashboardID,
		}).Warn("Dropping unresponsive WebSocket client")
		h.unregisterClient(client)
	}

	h.mu.Lock()
	h.stats.MessagesSent += int64(sent)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"dashboard_id": msg.dashboardID,
		"message_type": msg.kind,
		"clients_sent": sent,
	}).Debug("Event fanned out to dashboard subscribers")
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{
			"clients": h.GetClientCount(),
		},
	}
	payload := heartbeat.ToJSON()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(payload) {
			h.unregisterClient(client)
		}
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns how many clients follow a dashboard.
func (h *Hub) SubscriberCount(dashboardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.IsSubscribed(dashboardID) {
			count++
		}
	}
	return count
}
