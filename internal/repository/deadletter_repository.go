package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/routing-engine/internal/broker"
)

// DeadLetterRepository archives dead-lettered tickets to the external log so
// operators can intervene after a restart.
type DeadLetterRepository interface {
	Archive(ctx context.Context, rec broker.DeadLetterRecord) error
	ListRecent(ctx context.Context, limit int) ([]broker.DeadLetterRecord, error)
}

type deadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository builds the repository. A nil pool yields a no-op
// archiver; the engine stays fully functional without the external log.
func NewDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &deadLetterRepository{pool: pool}
}

func (r *deadLetterRepository) Archive(ctx context.Context, rec broker.DeadLetterRecord) error {
	if r.pool == nil {
		return nil
	}
	const query = `
        INSERT INTO dead_letters (ticket_id, retry_count, reason, occurred_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, query, rec.TicketID, rec.RetryCount, rec.Reason, rec.Timestamp)
	return err
}

func (r *deadLetterRepository) ListRecent(ctx context.Context, limit int) ([]broker.DeadLetterRecord, error) {
	if r.pool == nil {
		return nil, nil
	}
	const query = `
        SELECT ticket_id, retry_count, reason, occurred_at
        FROM dead_letters ORDER BY occurred_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []broker.DeadLetterRecord
	for rows.Next() {
		var rec broker.DeadLetterRecord
		var occurredAt time.Time
		if err := rows.Scan(&rec.TicketID, &rec.RetryCount, &rec.Reason, &occurredAt); err != nil {
			return nil, err
		}
		rec.Timestamp = occurredAt
		result = append(result, rec)
	}
	return result, rows.Err()
}
