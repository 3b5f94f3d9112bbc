package dto

import (
	"time"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// RegisterAgentRequest payload. Skills maps category name to proficiency in
// [0,1].
type RegisterAgentRequest struct {
	Name     string             `json:"name"`
	Skills   map[string]float64 `json:"skills"`
	Capacity int                `json:"capacity"`
}

// UpdateAgentStatusRequest payload.
type UpdateAgentStatusRequest struct {
	Status domain.AgentStatus `json:"status"`
}

// AgentResponse response.
type AgentResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Skills      map[string]float64 `json:"skills"`
	Capacity    int                `json:"capacity"`
	CurrentLoad int                `json:"current_load"`
	Status      domain.AgentStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// RoutingHistoryResponse is one assignment audit record.
type RoutingHistoryResponse struct {
	TicketID  string    `json:"ticket_id"`
	AgentID   string    `json:"agent_id"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}
