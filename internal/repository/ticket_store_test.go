package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/domain"
)

func TestTicketStoreCreateAssignsArrivalOrder(t *testing.T) {
	s := NewTicketStore()

	first := &domain.Ticket{ID: "TKT-1", Status: domain.TicketStatusQueued}
	second := &domain.Ticket{ID: "TKT-2", Status: domain.TicketStatusQueued}
	require.True(t, s.Create(first))
	require.True(t, s.Create(second))

	assert.Less(t, first.ArrivalSeq, second.ArrivalSeq)
	assert.False(t, second.CreatedAt.IsZero())

	dup := &domain.Ticket{ID: "TKT-1"}
	assert.False(t, s.Create(dup), "duplicate ids are rejected")
}

func TestTicketStoreGetReturnsCopy(t *testing.T) {
	s := NewTicketStore()
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-1", Status: domain.TicketStatusQueued, Priority: 0.5}))

	copy1, ok := s.Get("TKT-1")
	require.True(t, ok)
	copy1.Priority = 0.99

	copy2, _ := s.Get("TKT-1")
	assert.InDelta(t, 0.5, copy2.Priority, 1e-9, "mutating the copy does not touch the store")
}

func TestTicketStoreUpdate(t *testing.T) {
	s := NewTicketStore()
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-1", Status: domain.TicketStatusQueued}))

	ok := s.Update("TKT-1", func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusActive
	})
	require.True(t, ok)

	stored, _ := s.Get("TKT-1")
	assert.Equal(t, domain.TicketStatusActive, stored.Status)

	assert.False(t, s.Update("missing", func(*domain.Ticket) {}))
}

func TestTicketStoreListFiltersByStatus(t *testing.T) {
	s := NewTicketStore()
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-1", Status: domain.TicketStatusQueued}))
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-2", Status: domain.TicketStatusActive}))
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-3", Status: domain.TicketStatusCompleted}))

	assert.Len(t, s.List(), 3)
	assert.Len(t, s.List(domain.TicketStatusQueued, domain.TicketStatusActive), 2)
	assert.Equal(t, 1, s.CountByStatus(domain.TicketStatusCompleted))
}

func TestTicketStoreActiveOnAgents(t *testing.T) {
	s := NewTicketStore()
	agentA, agentB := "agent-a", "agent-b"
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-1", Status: domain.TicketStatusActive, AssignedAgentID: &agentA}))
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-2", Status: domain.TicketStatusActive, AssignedAgentID: &agentB}))
	require.True(t, s.Create(&domain.Ticket{ID: "TKT-3", Status: domain.TicketStatusQueued}))

	active := s.ActiveOnAgents(map[string]struct{}{agentA: {}})

	require.Len(t, active, 1)
	assert.Equal(t, "TKT-1", active[0].ID)
}
