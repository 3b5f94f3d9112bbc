package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusQueued     TicketStatus = "QUEUED"
	TicketStatusActive     TicketStatus = "ACTIVE"
	TicketStatusPaused     TicketStatus = "PAUSED"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
	TicketStatusDeadLetter TicketStatus = "DEAD_LETTER"
)

// Category enumerates routing categories produced by classification.
type Category string

const (
	CategoryBilling   Category = "Billing"
	CategoryTechnical Category = "Technical"
	CategoryLegal     Category = "Legal"
	CategoryGeneral   Category = "General"
)

// Categories lists the categories in classification rule order.
var Categories = []Category{CategoryBilling, CategoryTechnical, CategoryLegal, CategoryGeneral}

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryTechnical, CategoryLegal, CategoryGeneral:
		return true
	}
	return false
}

// DefaultHandleTime is the handle-time estimate seeded at intake when the
// submitter does not supply one.
func (c Category) DefaultHandleTime() time.Duration {
	switch c {
	case CategoryBilling:
		return 15 * time.Minute
	case CategoryTechnical:
		return 30 * time.Minute
	case CategoryLegal:
		return 45 * time.Minute
	}
	return 20 * time.Minute
}

// Vector is an externally computed content embedding with fixed dimensionality.
type Vector []float64

// Ticket is the aggregate for a support request flowing through the engine.
type Ticket struct {
	ID              string
	Subject         string
	Description     string
	CustomerID      string
	Category        Category
	Urgency         float64
	Priority        float64
	Status          TicketStatus
	AssignedAgentID *string
	// RemainingDuration is the estimated work left; preserved across pauses.
	RemainingDuration time.Duration
	ContentVector     Vector
	IncidentClusterID *string
	ArrivalSeq        uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether the ticket can no longer re-enter the queue.
func (t *Ticket) Terminal() bool {
	switch t.Status {
	case TicketStatusCompleted, TicketStatusCancelled, TicketStatusDeadLetter:
		return true
	}
	return false
}
