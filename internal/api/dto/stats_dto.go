package dto

import (
	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/classify"
	"github.com/spec-kit/routing-engine/internal/dedup"
	"github.com/spec-kit/routing-engine/internal/routing"
)

// EngineStatsResponse aggregates one snapshot across engine components.
type EngineStatsResponse struct {
	Broker      broker.Counts         `json:"broker"`
	Breaker     classify.BreakerStats `json:"breaker"`
	Routing     routing.Stats         `json:"routing"`
	Dedup       dedup.Stats           `json:"dedup"`
	Preemptions uint64                `json:"preemptions"`
	Paused      int                   `json:"paused"`
}

// DeadLettersResponse pairs the broker's in-memory dead-letter ids with
// archived records from the external log.
type DeadLettersResponse struct {
	TicketIDs []string                  `json:"ticket_ids"`
	Archived  []broker.DeadLetterRecord `json:"archived"`
}
