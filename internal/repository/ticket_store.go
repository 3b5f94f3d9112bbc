package repository

import (
	"sync"
	"time"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// TicketStore holds ticket state in memory for the lifetime of the process.
// The engine never drops a ticket except into dead-letter; eviction is an
// external retention concern.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	nextSeq uint64
}

// NewTicketStore creates an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]*domain.Ticket)}
}

// Create stores a new ticket, assigning its arrival sequence. Returns false
// when the id already exists (duplicate submissions are a no-op upstream).
func (s *TicketStore) Create(ticket *domain.Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return false
	}
	ticket.ArrivalSeq = s.nextSeq
	s.nextSeq++
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	s.tickets[ticket.ID] = ticket
	return true
}

// Get returns a copy of the ticket.
func (s *TicketStore) Get(ticketID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	return *ticket, true
}

// Update mutates a ticket under the store lock. Returns false when the id is
// unknown.
func (s *TicketStore) Update(ticketID string, mutate func(*domain.Ticket)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return false
	}
	mutate(ticket)
	ticket.UpdatedAt = time.Now()
	return true
}

// List returns copies of tickets, optionally filtered by status.
func (s *TicketStore) List(statuses ...domain.TicketStatus) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if len(statuses) == 0 || containsStatus(statuses, ticket.Status) {
			out = append(out, *ticket)
		}
	}
	return out
}

// ActiveOnAgents returns copies of active tickets assigned to any of the
// given agents.
func (s *TicketStore) ActiveOnAgents(agentIDs map[string]struct{}) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ticket, 0)
	for _, ticket := range s.tickets {
		if ticket.Status != domain.TicketStatusActive || ticket.AssignedAgentID == nil {
			continue
		}
		if _, ok := agentIDs[*ticket.AssignedAgentID]; ok {
			out = append(out, *ticket)
		}
	}
	return out
}

// CountByStatus returns the number of tickets in the given status.
func (s *TicketStore) CountByStatus(status domain.TicketStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, ticket := range s.tickets {
		if ticket.Status == status {
			count++
		}
	}
	return count
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
