package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/routing-engine/internal/api/dto"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/routing"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

// AgentsHandler manages the agent roster endpoints.
type AgentsHandler struct {
	router *routing.Router
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(router *routing.Router) *AgentsHandler {
	return &AgentsHandler{router: router}
}

// RegisterAgent POST /agents.
func (h *AgentsHandler) RegisterAgent(c *fiber.Ctx) error {
	var req dto.RegisterAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	skills := make(map[domain.Category]float64, len(req.Skills))
	for name, level := range req.Skills {
		category := domain.Category(name)
		if !category.Valid() {
			return apperrors.NewValidationError("unknown skill category", map[string]any{"category": name})
		}
		skills[category] = level
	}

	agent, err := h.router.RegisterAgent(req.Name, skills, req.Capacity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// ListAgents GET /agents.
func (h *AgentsHandler) ListAgents(c *fiber.Ctx) error {
	agents := h.router.List()
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetAgent GET /agents/:id.
func (h *AgentsHandler) GetAgent(c *fiber.Ctx) error {
	agent, ok := h.router.Get(c.Params("id"))
	if !ok {
		return apperrors.NewNotFound("agent", map[string]any{"agent_id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": agentResponse(&agent)})
}

// UpdateStatus PATCH /agents/:id/status.
func (h *AgentsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateAgentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.router.UpdateStatus(c.Params("id"), req.Status); err != nil {
		return err
	}
	agent, _ := h.router.Get(c.Params("id"))
	return c.JSON(fiber.Map{"data": agentResponse(&agent)})
}

func agentResponse(agent *domain.Agent) dto.AgentResponse {
	skills := make(map[string]float64, len(agent.Skills))
	for category, level := range agent.Skills {
		skills[string(category)] = level
	}
	return dto.AgentResponse{
		ID:          agent.ID,
		Name:        agent.Name,
		Skills:      skills,
		Capacity:    agent.Capacity,
		CurrentLoad: agent.CurrentLoad,
		Status:      agent.Status,
		CreatedAt:   agent.CreatedAt,
	}
}
