package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/classify"
	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/dedup"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/events"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/scheduler"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

const maxSubjectLength = 500

// TicketService orchestrates the intake path: validate, classify, tag
// duplicates and hand off to the broker. Intake never blocks on dispatch.
type TicketService struct {
	pipeline       *classify.Pipeline
	deduplicator   *dedup.Deduplicator
	tickets        *repository.TicketStore
	broker         *broker.Broker
	scheduler      *scheduler.Scheduler
	dispatcher     events.Dispatcher
	alertThreshold float64
	logger         *zap.Logger
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	Pipeline     *classify.Pipeline
	Deduplicator *dedup.Deduplicator
	Tickets      *repository.TicketStore
	Broker       *broker.Broker
	Scheduler    *scheduler.Scheduler
	Dispatcher   events.Dispatcher
}

// NewTicketService creates the service.
func NewTicketService(cfg config.AlertConfig, deps TicketDependencies, logger *zap.Logger) *TicketService {
	return &TicketService{
		pipeline:       deps.Pipeline,
		deduplicator:   deps.Deduplicator,
		tickets:        deps.Tickets,
		broker:         deps.Broker,
		scheduler:      deps.Scheduler,
		dispatcher:     deps.Dispatcher,
		alertThreshold: cfg.HighUrgencyThreshold,
		logger:         logger,
	}
}

// SubmitInput carries intake fields. ContentVector is computed by an external
// embedding service; an empty vector disables dedup for the ticket. A zero
// EstimatedDuration falls back to the category's default handle time.
type SubmitInput struct {
	Subject           string
	Description       string
	CustomerID        string
	ContentVector     domain.Vector
	EstimatedDuration time.Duration
}

// SubmitResult is returned immediately at intake; dispatch happens async.
type SubmitResult struct {
	Ticket        domain.Ticket
	QueuePosition int
	Model         classify.Model
}

// SubmitTicket classifies, tags duplicates and enqueues a new ticket. The
// caller always gets a result, even under classifier failure: the fallback
// degrades quality, not availability.
func (s *TicketService) SubmitTicket(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := validateSubmit(input); err != nil {
		return nil, err
	}

	result := s.pipeline.Classify(ctx, input.Subject, input.Description)

	estimate := input.EstimatedDuration
	if estimate == 0 {
		estimate = result.Category.DefaultHandleTime()
	}
	ticket := &domain.Ticket{
		ID:                newTicketID(),
		Subject:           input.Subject,
		Description:       input.Description,
		CustomerID:        input.CustomerID,
		Category:          result.Category,
		Urgency:           result.Urgency,
		Priority:          result.Urgency,
		Status:            domain.TicketStatusQueued,
		RemainingDuration: estimate,
		ContentVector:     input.ContentVector,
	}

	// Dedup runs alongside classification and never blocks dispatch. A
	// duplicate inherits the cluster's aggregate urgency for scheduling but
	// keeps its own urgency on record.
	match := s.deduplicator.Observe(ticket)
	if match.IsDuplicate {
		clusterID := match.ClusterID
		ticket.IncidentClusterID = &clusterID
		if match.AggregateUrgency > ticket.Priority {
			ticket.Priority = match.AggregateUrgency
		}
	}

	if !s.tickets.Create(ticket) {
		return nil, apperrors.NewConflict("duplicate ticket id", map[string]any{"ticket_id": ticket.ID})
	}
	position := s.broker.Enqueue(ctx, ticket.ID, ticket.Priority, ticket.ArrivalSeq)

	s.publish(ctx, events.EventTicketReceived, ticket.ID, events.TicketReceivedPayload{
		CustomerID:    ticket.CustomerID,
		Subject:       ticket.Subject,
		QueuePosition: position,
		Urgency:       ticket.Urgency,
	})
	s.publish(ctx, events.EventTicketClassified, ticket.ID, events.TicketClassifiedPayload{
		Category: ticket.Category,
		Urgency:  ticket.Urgency,
		Model:    string(result.Model),
	})
	// Duplicates fold into their master incident instead of alerting
	// individually.
	if ticket.Urgency > s.alertThreshold && !match.IsDuplicate {
		s.publish(ctx, events.EventHighUrgencyAlert, ticket.ID, events.HighUrgencyAlertPayload{
			Urgency:  ticket.Urgency,
			Category: ticket.Category,
			Subject:  ticket.Subject,
		})
	}

	stored, _ := s.tickets.Get(ticket.ID)
	return &SubmitResult{Ticket: stored, QueuePosition: position, Model: result.Model}, nil
}

// GetTicket returns a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListTickets returns tickets, optionally filtered by status.
func (s *TicketService) ListTickets(ctx context.Context, statuses ...domain.TicketStatus) []domain.Ticket {
	return s.tickets.List(statuses...)
}

// UpdatePriority manually repositions a pending ticket. Dispatched tickets
// are never reordered.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, priority float64) (domain.Ticket, error) {
	if priority < 0 || priority > 1 {
		return domain.Ticket{}, apperrors.NewValidationError("priority must be in [0,1]", map[string]any{"priority": priority})
	}
	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if !s.broker.UpdatePriority(ticketID, priority) {
		return domain.Ticket{}, apperrors.NewConflict("ticket is not pending", map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}
	s.tickets.Update(ticketID, func(t *domain.Ticket) {
		t.Priority = priority
	})
	updated, _ := s.tickets.Get(ticketID)
	return updated, nil
}

// Reclassify re-runs the classification pipeline and overwrites category and
// urgency. Only tickets still waiting for their first dispatch are reordered
// in the queue.
func (s *TicketService) Reclassify(ctx context.Context, ticketID string) (domain.Ticket, error) {
	ticket, ok := s.tickets.Get(ticketID)
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Terminal() {
		return domain.Ticket{}, apperrors.NewConflict("ticket already terminal", map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}

	result := s.pipeline.Classify(ctx, ticket.Subject, ticket.Description)
	reorder := ticket.Status == domain.TicketStatusQueued
	s.tickets.Update(ticketID, func(t *domain.Ticket) {
		t.Category = result.Category
		t.Urgency = result.Urgency
		if reorder {
			t.Priority = result.Urgency
		}
	})
	if reorder {
		s.broker.UpdatePriority(ticketID, result.Urgency)
	}
	s.publish(ctx, events.EventTicketClassified, ticketID, events.TicketClassifiedPayload{
		Category: result.Category,
		Urgency:  result.Urgency,
		Model:    string(result.Model),
	})
	updated, _ := s.tickets.Get(ticketID)
	return updated, nil
}

// CancelTicket withdraws a ticket pre-assignment or releases its slot when
// active.
func (s *TicketService) CancelTicket(ctx context.Context, ticketID string) error {
	return s.scheduler.Cancel(ctx, ticketID)
}

// CompleteTicket marks an active ticket's work finished.
func (s *TicketService) CompleteTicket(ctx context.Context, ticketID string) error {
	return s.scheduler.Complete(ctx, ticketID)
}

// Incidents returns all master incidents.
func (s *TicketService) Incidents(ctx context.Context) []domain.MasterIncident {
	return s.deduplicator.List()
}

// Incident returns one master incident.
func (s *TicketService) Incident(ctx context.Context, clusterID string) (domain.MasterIncident, error) {
	incident, ok := s.deduplicator.Get(clusterID)
	if !ok {
		return domain.MasterIncident{}, apperrors.NewNotFound("incident", map[string]any{"cluster_id": clusterID})
	}
	return incident, nil
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
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

func validateSubmit(input SubmitInput) error {
	if strings.TrimSpace(input.Subject) == "" {
		return apperrors.NewValidationError("subject required", nil)
	}
	if len(input.Subject) > maxSubjectLength {
		return apperrors.NewValidationError("subject too long", map[string]any{"max_length": maxSubjectLength})
	}
	if strings.TrimSpace(input.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	if strings.TrimSpace(input.CustomerID) == "" {
		return apperrors.NewValidationError("customer_id required", nil)
	}
	if input.EstimatedDuration < 0 {
		return apperrors.NewValidationError("estimated duration must not be negative", map[string]any{"estimated_duration": input.EstimatedDuration.String()})
	}
	return nil
}

func newTicketID() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}
