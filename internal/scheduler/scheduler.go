// Package scheduler owns agent assignment slots: it matches leased tickets to
// agents via the skill router and preempts lower-priority in-flight work when
// a sufficiently more urgent ticket arrives.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/events"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/routing"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

// Decision is the outcome of one admission attempt.
type Decision struct {
	Assigned bool
	AgentID  string
	// PreemptedTicketID is set when admitting this ticket paused another.
	PreemptedTicketID string
	// Skipped is set when the ticket reached the scheduler in a terminal
	// state (e.g. cancelled while queued) and needs no assignment.
	Skipped bool
}

// Scheduler computes and commits assignment decisions. Computation and
// commit happen inside one critical section so queue, agent and ticket state
// never observe a half-applied preemption.
type Scheduler struct {
	mu          sync.Mutex
	tickets     *repository.TicketStore
	router      *routing.Router
	broker      *broker.Broker
	dispatcher  events.Dispatcher
	margin      float64
	preemptions uint64
	logger      *zap.Logger
}

// Dependencies bundles collaborators.
type Dependencies struct {
	Tickets    *repository.TicketStore
	Router     *routing.Router
	Broker     *broker.Broker
	Dispatcher events.Dispatcher
}

// New creates the scheduler.
func New(cfg config.SchedulerConfig, deps Dependencies, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickets:    deps.Tickets,
		router:     deps.Router,
		broker:     deps.Broker,
		dispatcher: deps.Dispatcher,
		margin:     cfg.PreemptionMargin,
		logger:     logger,
	}
}

// Dispatch attempts to admit a leased ticket onto an agent. When every
// qualified agent is saturated and the ticket outranks all their active work
// by more than the preemption margin, exactly one victim is paused to make
// room; otherwise the ticket stays queued (capacity exhaustion is not an
// error).
func (s *Scheduler) Dispatch(ctx context.Context, ticketID string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return Decision{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Terminal() || ticket.Status == domain.TicketStatusActive {
		return Decision{Skipped: true}, nil
	}

	if agentID, score, routed := s.router.Route(&ticket); routed {
		s.commitAssignmentLocked(ctx, ticketID, agentID, score)
		return Decision{Assigned: true, AgentID: agentID}, nil
	}

	victim, found := s.selectVictimLocked(&ticket)
	if !found {
		return Decision{}, nil
	}

	// Two-phase commit: pause the victim, free its slot, re-enqueue it at
	// its original priority, then admit the incoming ticket. All inside the
	// same critical section.
	victimAgentID := *victim.AssignedAgentID
	s.tickets.Update(victim.ID, func(t *domain.Ticket) {
		t.Status = domain.TicketStatusPaused
		t.AssignedAgentID = nil
	})
	if err := s.router.Release(victimAgentID); err != nil {
		return Decision{}, apperrors.MapError(err)
	}
	s.broker.Enqueue(ctx, victim.ID, victim.Priority, victim.ArrivalSeq)

	agentID, score, routed := s.router.Route(&ticket)
	if !routed {
		// Should not happen once the slot is freed; surface loudly rather
		// than leave the victim paused with nothing admitted.
		if s.logger != nil {
			s.logger.Error("preemption freed a slot but routing failed",
				zap.String("ticket_id", ticketID),
				zap.String("victim_id", victim.ID))
		}
		return Decision{}, apperrors.NewInternalError(nil)
	}
	s.preemptions++
	s.commitAssignmentLocked(ctx, ticketID, agentID, score)
	s.publish(ctx, events.EventTicketPreempted, victim.ID, events.TicketPreemptedPayload{
		VictimTicketID: victim.ID,
		AgentID:        victimAgentID,
	})
	if s.logger != nil {
		s.logger.Info("ticket preempted",
			zap.String("victim_id", victim.ID),
			zap.String("admitted_id", ticketID),
			zap.String("agent_id", agentID))
	}
	return Decision{Assigned: true, AgentID: agentID, PreemptedTicketID: victim.ID}, nil
}

// Complete marks an active ticket finished and frees its agent slot.
func (s *Scheduler) Complete(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status != domain.TicketStatusActive || ticket.AssignedAgentID == nil {
		return apperrors.NewConflict("ticket is not active", map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}
	agentID := *ticket.AssignedAgentID
	if err := s.router.Release(agentID); err != nil {
		return apperrors.MapError(err)
	}
	s.tickets.Update(ticketID, func(t *domain.Ticket) {
		t.Status = domain.TicketStatusCompleted
		t.AssignedAgentID = nil
		t.RemainingDuration = 0
	})
	s.publish(ctx, events.EventTicketCompleted, ticketID, nil)
	return nil
}

// Cancel withdraws a ticket. Pre-assignment it is removed from the queue;
// once active the agent slot is released so the next dispatch pass can fill
// it.
func (s *Scheduler) Cancel(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	switch ticket.Status {
	case domain.TicketStatusQueued, domain.TicketStatusPaused:
		if err := s.broker.Withdraw(ctx, ticketID); err != nil {
			return err
		}
	case domain.TicketStatusActive:
		if ticket.AssignedAgentID != nil {
			if err := s.router.Release(*ticket.AssignedAgentID); err != nil {
				return apperrors.MapError(err)
			}
		}
	default:
		return apperrors.NewConflict("ticket already terminal", map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}
	s.tickets.Update(ticketID, func(t *domain.Ticket) {
		t.Status = domain.TicketStatusCancelled
		t.AssignedAgentID = nil
	})
	s.publish(ctx, events.EventTicketCancelled, ticketID, nil)
	return nil
}

// PreemptionCount returns the monotonically increasing preemption counter.
func (s *Scheduler) PreemptionCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preemptions
}

// PausedCount returns the number of currently paused tickets.
func (s *Scheduler) PausedCount() int {
	return s.tickets.CountByStatus(domain.TicketStatusPaused)
}

// selectVictimLocked applies the preemption rule: the incoming ticket must
// outrank every active ticket on agents qualified for its category by more
// than the margin, and the single victim is the lowest-priority active
// ticket. Ties break by earliest agent registration, then earliest arrival.
func (s *Scheduler) selectVictimLocked(ticket *domain.Ticket) (domain.Ticket, bool) {
	qualified := s.router.Qualified(ticket.Category)
	if len(qualified) == 0 {
		return domain.Ticket{}, false
	}
	agentSeq := make(map[string]uint64, len(qualified))
	agentIDs := make(map[string]struct{}, len(qualified))
	for _, agent := range qualified {
		agentIDs[agent.ID] = struct{}{}
		agentSeq[agent.ID] = agent.RegistrationSeq
	}

	active := s.tickets.ActiveOnAgents(agentIDs)
	if len(active) == 0 {
		return domain.Ticket{}, false
	}

	var victim domain.Ticket
	haveVictim := false
	for _, candidate := range active {
		if ticket.Priority <= candidate.Priority+s.margin {
			// One active ticket within the margin blocks preemption entirely.
			return domain.Ticket{}, false
		}
		if !haveVictim || lessVictim(candidate, victim, agentSeq) {
			victim = candidate
			haveVictim = true
		}
	}
	return victim, haveVictim
}

func lessVictim(a, b domain.Ticket, agentSeq map[string]uint64) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	seqA, seqB := agentSeq[*a.AssignedAgentID], agentSeq[*b.AssignedAgentID]
	if seqA != seqB {
		return seqA < seqB
	}
	return a.ArrivalSeq < b.ArrivalSeq
}

func (s *Scheduler) commitAssignmentLocked(ctx context.Context, ticketID, agentID string, score float64) {
	s.tickets.Update(ticketID, func(t *domain.Ticket) {
		t.Status = domain.TicketStatusActive
		t.AssignedAgentID = &agentID
	})
	s.publish(ctx, events.EventTicketAssigned, ticketID, events.TicketAssignedPayload{AgentID: agentID, Score: score})
}

func (s *Scheduler) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
