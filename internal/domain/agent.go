package domain

import "time"

// AgentStatus enumerates agent availability states.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "AVAILABLE"
	AgentStatusBusy      AgentStatus = "BUSY"
	AgentStatusOffline   AgentStatus = "OFFLINE"
)

// Agent models a human support agent as a routing target.
type Agent struct {
	ID   string
	Name string
	// Skills maps ticket category to proficiency in [0,1].
	Skills      map[Category]float64
	Capacity    int
	CurrentLoad int
	Status      AgentStatus
	// RegistrationSeq orders agents deterministically for tie-breaking.
	RegistrationSeq uint64
	CreatedAt       time.Time
}

// CanAccept reports whether the agent has a free slot.
func (a *Agent) CanAccept() bool {
	return a.Status != AgentStatusOffline && a.CurrentLoad < a.Capacity
}

// Skill returns the agent's proficiency for a category, zero when unskilled.
func (a *Agent) Skill(category Category) float64 {
	return a.Skills[category]
}

// DeriveStatus recomputes the derived availability status. Offline is sticky
// and only cleared by an explicit status update.
func (a *Agent) DeriveStatus() {
	if a.Status == AgentStatusOffline {
		return
	}
	if a.CurrentLoad >= a.Capacity {
		a.Status = AgentStatusBusy
	} else {
		a.Status = AgentStatusAvailable
	}
}
