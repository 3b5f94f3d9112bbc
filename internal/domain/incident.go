package domain

import "time"

// MasterIncident groups near-duplicate tickets sharing one underlying issue.
type MasterIncident struct {
	ID string
	// Representative is the first member's content vector; it is never
	// recomputed as members join.
	Representative  Vector
	TicketIDs       []string
	Category        Category
	SimilarityScore float64
	// AggregateUrgency is the highest urgency seen across members; joined
	// tickets inherit it for scheduling.
	AggregateUrgency float64
	SuppressedCount  int
	CreatedAt        time.Time
}

// RoutingHistoryEntry is an append-only audit record of an assignment.
type RoutingHistoryEntry struct {
	TicketID  string
	AgentID   string
	Score     float64
	Timestamp time.Time
}
