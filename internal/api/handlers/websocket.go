package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard-backend-go/internal/websocket"
)

// WebSocketHandler upgrades the connection and hands it to the hub.
func (h *Handlers) WebSocketHandler() gin.HandlerFunc {
	return websocket.HandleWebSocketGin(h.wsHub)
}
