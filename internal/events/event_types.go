package events

import (
	"time"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketReceived     EventType = "ticket_received"
	EventTicketClassified   EventType = "ticket_classified"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketPreempted    EventType = "ticket_preempted"
	EventTicketCompleted    EventType = "ticket_completed"
	EventTicketCancelled    EventType = "ticket_cancelled"
	EventTicketDeadLettered EventType = "ticket_dead_lettered"
	EventHighUrgencyAlert   EventType = "high_urgency_alert"
)

// Event represents an engine event emitted by the scheduler and services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketReceivedPayload payload.
type TicketReceivedPayload struct {
	CustomerID    string  `json:"customer_id"`
	Subject       string  `json:"subject"`
	QueuePosition int     `json:"queue_position"`
	Urgency       float64 `json:"urgency"`
}

// TicketClassifiedPayload payload.
type TicketClassifiedPayload struct {
	Category domain.Category `json:"category"`
	Urgency  float64         `json:"urgency"`
	Model    string          `json:"model"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// TicketPreemptedPayload payload.
type TicketPreemptedPayload struct {
	// VictimTicketID is the previously active ticket that was paused.
	VictimTicketID string `json:"victim_ticket_id"`
	AgentID        string `json:"agent_id"`
}

// TicketDeadLetteredPayload payload.
type TicketDeadLetteredPayload struct {
	RetryCount int    `json:"retry_count"`
	Reason     string `json:"reason"`
}

// HighUrgencyAlertPayload payload. Emitted for tickets above the alert
// threshold unless they were folded into a master incident.
type HighUrgencyAlertPayload struct {
	Urgency  float64         `json:"urgency"`
	Category domain.Category `json:"category"`
	Subject  string          `json:"subject"`
}
