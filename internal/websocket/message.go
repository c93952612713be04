package websocket

import (
	"encoding/json"
	"time"
)

// Message types emitted by the hub
const (
	MessageTypeWidgetUpdated  = "widget_updated"
	MessageTypeReportUpdated  = "report_updated"
	MessageTypeAlertTriggered = "alert_triggered"
	MessageTypeConnection     = "connection"
	MessageTypeHeartbeat      = "heartbeat"
	MessageTypeSubscribed     = "subscribed"
	MessageTypeUnsubscribed   = "unsubscribed"
	MessageTypePong           = "pong"
)

// Message types accepted from clients
const (
	MessageTypeSubscribeDashboard   = "subscribe_dashboard"
	MessageTypeUnsubscribeDashboard = "unsubscribe_dashboard"
	MessageTypePing                 = "ping"
)

// Message is the envelope for every event crossing the live channel.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// WidgetUpdatedMessage builds the data-updated event for an entity.
func WidgetUpdatedMessage(entityID string, rowCount int, duration time.Duration) Message {
	return Message{
		Type: MessageTypeWidgetUpdated,
		Data: map[string]interface{}{
			"entity_id": entityID,
			"rows":      rowCount,
			"duration":  duration.String(),
		},
	}
}

// ReportUpdatedMessage builds the data-updated event for a report.
func ReportUpdatedMessage(entityID string, rowCount int, duration time.Duration) Message {
	return Message{
		Type: MessageTypeReportUpdated,
		Data: map[string]interface{}{
			"entity_id": entityID,
			"rows":      rowCount,
			"duration":  duration.String(),
		},
	}
}

// AlertTriggeredMessage builds the event for a fired alert condition.
func AlertTriggeredMessage(entityID, alertID, metric string, observed, threshold float64, severity string) Message {
	return Message{
		Type: MessageTypeAlertTriggered,
		Data: map[string]interface{}{
			"entity_id": entityID,
			"alert_id":  alertID,
			"metric":    metric,
			"observed":  observed,
			"threshold": threshold,
			"severity":  severity,
		},
	}
}
