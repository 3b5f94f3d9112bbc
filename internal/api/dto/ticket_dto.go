package dto

import (
	"time"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// SubmitTicketRequest payload. EstimatedDurationMS is optional; zero lets the
// engine derive a handle-time estimate from the classified category.
type SubmitTicketRequest struct {
	Subject             string    `json:"subject"`
	Description         string    `json:"description"`
	CustomerID          string    `json:"customer_id"`
	ContentVector       []float64 `json:"content_vector"`
	EstimatedDurationMS int64     `json:"estimated_duration_ms"`
}

// SubmitTicketResponse is returned synchronously at intake.
type SubmitTicketResponse struct {
	TicketSummary
	QueuePosition int    `json:"queue_position"`
	Model         string `json:"model"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                string              `json:"id"`
	Subject           string              `json:"subject"`
	CustomerID        string              `json:"customer_id"`
	Category          domain.Category     `json:"category"`
	Urgency           float64             `json:"urgency"`
	Priority          float64             `json:"priority"`
	Status            domain.TicketStatus `json:"status"`
	AssignedAgentID   *string             `json:"assigned_agent_id"`
	IncidentClusterID *string             `json:"incident_cluster_id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description         string    `json:"description"`
	RemainingDurationMS int64     `json:"remaining_duration_ms"`
	ArrivalSeq          uint64    `json:"arrival_seq"`
	ContentVector       []float64 `json:"content_vector,omitempty"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority float64 `json:"priority"`
}

// IncidentResponse represents a master incident.
type IncidentResponse struct {
	ID               string          `json:"id"`
	Category         domain.Category `json:"category"`
	TicketIDs        []string        `json:"ticket_ids"`
	TicketCount      int             `json:"ticket_count"`
	SimilarityScore  float64         `json:"similarity_score"`
	AggregateUrgency float64         `json:"aggregate_urgency"`
	SuppressedCount  int             `json:"suppressed_count"`
	CreatedAt        time.Time       `json:"created_at"`
}
