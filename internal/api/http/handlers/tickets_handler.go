package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/routing-engine/internal/api/dto"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/service"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

// TicketsHandler manages ticket intake and lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// SubmitTicket POST /tickets.
func (h *TicketsHandler) SubmitTicket(c *fiber.Ctx) error {
	var req dto.SubmitTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.SubmitTicket(c.UserContext(), service.SubmitInput{
		Subject:           req.Subject,
		Description:       req.Description,
		CustomerID:        req.CustomerID,
		ContentVector:     domain.Vector(req.ContentVector),
		EstimatedDuration: time.Duration(req.EstimatedDurationMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.SubmitTicketResponse{
		TicketSummary: ticketSummary(&result.Ticket),
		QueuePosition: result.QueuePosition,
		Model:         string(result.Model),
	}})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	tickets := h.service.ListTickets(c.UserContext(), statuses...)
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(&ticket)})
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(&ticket)})
}

// Reclassify POST /tickets/:id/reclassify.
func (h *TicketsHandler) Reclassify(c *fiber.Ctx) error {
	ticket, err := h.service.Reclassify(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(&ticket)})
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	if err := h.service.CancelTicket(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(&ticket)})
}

// CompleteTicket POST /tickets/:id/complete.
func (h *TicketsHandler) CompleteTicket(c *fiber.Ctx) error {
	if err := h.service.CompleteTicket(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(&ticket)})
}

// ListIncidents GET /incidents.
func (h *TicketsHandler) ListIncidents(c *fiber.Ctx) error {
	incidents := h.service.Incidents(c.UserContext())
	items := make([]dto.IncidentResponse, 0, len(incidents))
	for i := range incidents {
		items = append(items, incidentResponse(&incidents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetIncident GET /incidents/:id.
func (h *TicketsHandler) GetIncident(c *fiber.Ctx) error {
	incident, err := h.service.Incident(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentResponse(&incident)})
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                ticket.ID,
		Subject:           ticket.Subject,
		CustomerID:        ticket.CustomerID,
		Category:          ticket.Category,
		Urgency:           ticket.Urgency,
		Priority:          ticket.Priority,
		Status:            ticket.Status,
		AssignedAgentID:   ticket.AssignedAgentID,
		IncidentClusterID: ticket.IncidentClusterID,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketSummary:       ticketSummary(ticket),
		Description:         ticket.Description,
		RemainingDurationMS: ticket.RemainingDuration.Milliseconds(),
		ArrivalSeq:          ticket.ArrivalSeq,
		ContentVector:       ticket.ContentVector,
	}
}

func incidentResponse(incident *domain.MasterIncident) dto.IncidentResponse {
	return dto.IncidentResponse{
		ID:               incident.ID,
		Category:         incident.Category,
		TicketIDs:        incident.TicketIDs,
		TicketCount:      len(incident.TicketIDs),
		SimilarityScore:  incident.SimilarityScore,
		AggregateUrgency: incident.AggregateUrgency,
		SuppressedCount:  incident.SuppressedCount,
		CreatedAt:        incident.CreatedAt,
	}
}
