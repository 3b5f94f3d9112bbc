package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/routing-engine/internal/api/dto"
	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/classify"
	"github.com/spec-kit/routing-engine/internal/dedup"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/routing"
	"github.com/spec-kit/routing-engine/internal/scheduler"
)

// StatsHandler exposes engine observability snapshots.
type StatsHandler struct {
	broker       *broker.Broker
	pipeline     *classify.Pipeline
	router       *routing.Router
	scheduler    *scheduler.Scheduler
	deduplicator *dedup.Deduplicator
	deadLetters  repository.DeadLetterRepository
	history      repository.RoutingHistoryRepository
}

// NewStatsHandler constructs handler.
func NewStatsHandler(b *broker.Broker, pipeline *classify.Pipeline, router *routing.Router, sched *scheduler.Scheduler, deduplicator *dedup.Deduplicator, deadLetters repository.DeadLetterRepository, history repository.RoutingHistoryRepository) *StatsHandler {
	return &StatsHandler{
		broker:       b,
		pipeline:     pipeline,
		router:       router,
		scheduler:    sched,
		deduplicator: deduplicator,
		deadLetters:  deadLetters,
		history:      history,
	}
}

// EngineStats GET /stats.
func (h *StatsHandler) EngineStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.EngineStatsResponse{
		Broker:      h.broker.Counts(),
		Breaker:     h.pipeline.Breaker().Stats(),
		Routing:     h.router.Stats(),
		Dedup:       h.deduplicator.Stats(),
		Preemptions: h.scheduler.PreemptionCount(),
		Paused:      h.scheduler.PausedCount(),
	}})
}

// RoutingHistory GET /stats/routing-history. With ?ticket_id= the external
// archive is queried, falling back to the in-memory window when the archive
// is disabled or has nothing for the ticket.
func (h *StatsHandler) RoutingHistory(c *fiber.Ctx) error {
	var entries []domain.RoutingHistoryEntry
	if ticketID := c.Query("ticket_id"); ticketID != "" {
		archived, err := h.history.ListByTicket(c.UserContext(), ticketID)
		if err != nil {
			return err
		}
		entries = archived
		if len(entries) == 0 {
			for _, entry := range h.router.History() {
				if entry.TicketID == ticketID {
					entries = append(entries, entry)
				}
			}
		}
	} else {
		entries = h.router.History()
	}

	items := make([]dto.RoutingHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.RoutingHistoryResponse{
			TicketID:  entry.TicketID,
			AgentID:   entry.AgentID,
			Score:     entry.Score,
			Timestamp: entry.Timestamp,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeadLetters GET /stats/dead-letters.
func (h *StatsHandler) DeadLetters(c *fiber.Ctx) error {
	archived, err := h.deadLetters.ListRecent(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DeadLettersResponse{
		TicketIDs: h.broker.DeadLetters(),
		Archived:  archived,
	}})
}
