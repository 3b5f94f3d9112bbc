package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// RoutingHistoryRepository archives assignment audit entries.
type RoutingHistoryRepository interface {
	Create(ctx context.Context, entry domain.RoutingHistoryEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.RoutingHistoryEntry, error)
}

type routingHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingHistoryRepository builds the repository. A nil pool yields a
// no-op archiver.
func NewRoutingHistoryRepository(pool *pgxpool.Pool) RoutingHistoryRepository {
	return &routingHistoryRepository{pool: pool}
}

func (r *routingHistoryRepository) Create(ctx context.Context, entry domain.RoutingHistoryEntry) error {
	if r.pool == nil {
		return nil
	}
	const query = `
        INSERT INTO routing_history (ticket_id, agent_id, score, assigned_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, query, entry.TicketID, entry.AgentID, entry.Score, entry.Timestamp)
	return err
}

func (r *routingHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.RoutingHistoryEntry, error) {
	if r.pool == nil {
		return nil, nil
	}
	const query = `
        SELECT ticket_id, agent_id, score, assigned_at
        FROM routing_history WHERE ticket_id=$1 ORDER BY assigned_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingHistoryEntry
	for rows.Next() {
		var entry domain.RoutingHistoryEntry
		if err := rows.Scan(&entry.TicketID, &entry.AgentID, &entry.Score, &entry.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
