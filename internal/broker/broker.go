// Package broker implements the durable intake boundary: idempotent enqueue,
// exclusive leasing, ack/nack bookkeeping and dead-lettering around the
// in-memory priority queue, with best-effort Redis mirroring.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/queue"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

// Envelope is the broker-internal record for a ticket. It never leaves the
// broker boundary except as a lease handle for the worker holding it.
type Envelope struct {
	TicketID   string
	LockToken  string
	RetryCount int
	Priority   float64
	Seq        uint64
}

type envelopeState int

const (
	statePending envelopeState = iota
	stateProcessing
)

type envelope struct {
	Envelope
	state         envelopeState
	leaseDeadline time.Time
}

// DeadLetterRecord is what gets written to the external dead-letter log.
type DeadLetterRecord struct {
	TicketID   string    `json:"ticket_id"`
	RetryCount int       `json:"retry_count"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeadLetterArchiver persists dead-letter records beyond process lifetime.
type DeadLetterArchiver interface {
	Archive(ctx context.Context, rec DeadLetterRecord) error
}

// Counts is the broker's observability snapshot.
type Counts struct {
	Pending    int  `json:"pending"`
	Processing int  `json:"processing"`
	Completed  int  `json:"completed"`
	DeadLetter int  `json:"dead_letter"`
	Connected  bool `json:"connected"`
}

// Broker is the async intake boundary. In-memory state is authoritative so
// enqueue and lease keep working when Redis is unreachable; the degraded mode
// is surfaced through Counts.Connected rather than through call failures.
type Broker struct {
	mu         sync.Mutex
	queue      *queue.PriorityQueue
	envelopes  map[string]*envelope
	completed  int
	deadLetter []string
	connected  bool

	rdb        *redis.Client
	maxRetries int
	leaseTTL   time.Duration
	now        func() time.Time
	keyQueue   string
	keyProc    string
	keyDone    string
	keyDead    string
	archiver   DeadLetterArchiver
	logger     *zap.Logger
}

// New constructs a broker over the given priority queue. client may be nil;
// the broker then runs purely in memory from the start.
func New(q *queue.PriorityQueue, client *redis.Client, cfg config.BrokerConfig, archiver DeadLetterArchiver, logger *zap.Logger) *Broker {
	b := &Broker{
		queue:      q,
		envelopes:  make(map[string]*envelope),
		rdb:        client,
		maxRetries: cfg.MaxRetries,
		leaseTTL:   cfg.LeaseTTL(),
		now:        time.Now,
		keyQueue:   cfg.QueuePrefix + ":queue",
		keyProc:    cfg.QueuePrefix + ":processing",
		keyDone:    cfg.QueuePrefix + ":completed",
		keyDead:    cfg.QueuePrefix + ":dead_letter",
		archiver:   archiver,
		logger:     logger,
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DialTimeoutS)*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			b.connected = true
		} else if logger != nil {
			logger.Warn("redis unreachable, broker running degraded", zap.Error(err))
		}
	}
	return b
}

// Enqueue adds a ticket to the pending queue. Idempotent on ticket id: a
// duplicate submission before ack is a no-op, not an error. Returns the
// advisory queue position.
func (b *Broker) Enqueue(ctx context.Context, ticketID string, priority float64, seq uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.envelopes[ticketID]; exists {
		return b.queue.Rank(ticketID)
	}

	env := &envelope{
		Envelope: Envelope{TicketID: ticketID, Priority: priority, Seq: seq},
		state:    statePending,
	}
	b.envelopes[ticketID] = env
	b.queue.Enqueue(ticketID, priority, seq)
	b.mirror(ctx, func(pipe redis.Pipeliner) {
		payload, _ := json.Marshal(env.Envelope)
		pipe.LPush(ctx, b.keyQueue, payload)
	})
	return b.queue.Rank(ticketID)
}

// LeaseNext atomically dequeues the highest-priority pending ticket and
// leases it. Expired leases are reclaimed first, so a wedged worker can never
// hold a ticket past its TTL. Returns false without blocking when nothing is
// pending.
func (b *Broker) LeaseNext(ctx context.Context) (Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reclaimExpiredLocked(ctx)

	ticketID, ok := b.queue.Dequeue()
	if !ok {
		return Envelope{}, false
	}
	return b.leaseLocked(ctx, ticketID), true
}

// Lease acquires an exclusive lease on a specific pending ticket.
func (b *Broker) Lease(ctx context.Context, ticketID string) (Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reclaimExpiredLocked(ctx)

	env, ok := b.envelopes[ticketID]
	if !ok {
		return Envelope{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if env.state == stateProcessing {
		return Envelope{}, apperrors.NewConflict("ticket already leased", map[string]any{"ticket_id": ticketID})
	}
	b.queue.Remove(ticketID)
	return b.leaseLocked(ctx, ticketID), nil
}

func (b *Broker) leaseLocked(ctx context.Context, ticketID string) Envelope {
	env := b.envelopes[ticketID]
	env.state = stateProcessing
	env.LockToken = uuid.NewString()
	if b.leaseTTL > 0 {
		env.leaseDeadline = b.now().Add(b.leaseTTL)
	}
	b.mirror(ctx, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, b.keyProc, ticketID)
	})
	return env.Envelope
}

// reclaimExpiredLocked returns timed-out leases to the pending queue. An
// expired lease spends one retry like a nack: the worker that held it gave no
// signal, so its attempt counts as a failure.
func (b *Broker) reclaimExpiredLocked(ctx context.Context) {
	if b.leaseTTL <= 0 {
		return
	}
	now := b.now()
	for ticketID, env := range b.envelopes {
		if env.state != stateProcessing || !env.leaseDeadline.Before(now) {
			continue
		}
		if b.logger != nil {
			b.logger.Warn("lease expired, reclaiming ticket",
				zap.String("ticket_id", ticketID),
				zap.Int("retries", env.RetryCount))
		}
		b.failLocked(ctx, env, "lease expired")
	}
}

// Ack marks a leased ticket's processing complete and releases the lease.
func (b *Broker) Ack(ctx context.Context, ticketID, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, err := b.leasedLocked(ticketID, token)
	if err != nil {
		return err
	}
	delete(b.envelopes, env.TicketID)
	b.completed++
	b.mirror(ctx, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, b.keyProc, ticketID)
		pipe.SAdd(ctx, b.keyDone, ticketID)
	})
	return nil
}

// Nack records a processing failure. The ticket is re-enqueued unless its
// retry budget is exhausted, in which case it is dead-lettered: terminal,
// never auto-retried, and archived to the external log when one is wired.
// Returns true when the ticket was dead-lettered.
func (b *Broker) Nack(ctx context.Context, ticketID, token, reason string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, err := b.leasedLocked(ticketID, token)
	if err != nil {
		return false, err
	}
	return b.failLocked(ctx, env, reason), nil
}

// failLocked spends one retry on a leased envelope: re-enqueue while budget
// remains, dead-letter otherwise. Returns true when dead-lettered.
func (b *Broker) failLocked(ctx context.Context, env *envelope, reason string) bool {
	ticketID := env.TicketID
	env.RetryCount++
	env.LockToken = ""
	env.leaseDeadline = time.Time{}

	if env.RetryCount > b.maxRetries {
		delete(b.envelopes, ticketID)
		b.deadLetter = append(b.deadLetter, ticketID)
		rec := DeadLetterRecord{
			TicketID:   ticketID,
			RetryCount: env.RetryCount,
			Reason:     reason,
			Timestamp:  time.Now(),
		}
		b.mirror(ctx, func(pipe redis.Pipeliner) {
			pipe.SRem(ctx, b.keyProc, ticketID)
			payload, _ := json.Marshal(rec)
			pipe.LPush(ctx, b.keyDead, payload)
		})
		if b.archiver != nil {
			if archiveErr := b.archiver.Archive(ctx, rec); archiveErr != nil && b.logger != nil {
				b.logger.Warn("dead-letter archive failed", zap.String("ticket_id", ticketID), zap.Error(archiveErr))
			}
		}
		if b.logger != nil {
			b.logger.Error("ticket dead-lettered",
				zap.String("ticket_id", ticketID),
				zap.Int("retries", env.RetryCount),
				zap.String("reason", reason))
		}
		return true
	}

	env.state = statePending
	b.queue.Enqueue(ticketID, env.Priority, env.Seq)
	b.mirror(ctx, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, b.keyProc, ticketID)
		payload, _ := json.Marshal(env.Envelope)
		pipe.LPush(ctx, b.keyQueue, payload)
	})
	return false
}

// Requeue releases a lease and puts the ticket back in the pending queue
// without spending retry budget. Used when no agent is eligible: capacity
// exhaustion is not a failure.
func (b *Broker) Requeue(ctx context.Context, ticketID, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, err := b.leasedLocked(ticketID, token)
	if err != nil {
		return err
	}
	env.state = statePending
	env.LockToken = ""
	env.leaseDeadline = time.Time{}
	b.queue.Enqueue(ticketID, env.Priority, env.Seq)
	b.mirror(ctx, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, b.keyProc, ticketID)
	})
	return nil
}

// Withdraw removes a pending ticket from the queue entirely (cancellation
// before assignment). Leased tickets cannot be withdrawn.
func (b *Broker) Withdraw(ctx context.Context, ticketID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, ok := b.envelopes[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if env.state == stateProcessing {
		return apperrors.NewConflict("ticket is being processed", map[string]any{"ticket_id": ticketID})
	}
	b.queue.Remove(ticketID)
	delete(b.envelopes, ticketID)
	return nil
}

// UpdatePriority repositions a pending ticket. Leased or unknown tickets are
// left untouched.
func (b *Broker) UpdatePriority(ticketID string, priority float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	env, ok := b.envelopes[ticketID]
	if !ok || env.state != statePending {
		return false
	}
	env.Priority = priority
	return b.queue.UpdatePriority(ticketID, priority)
}

// Counts returns broker bookkeeping totals plus the degraded-store flag.
func (b *Broker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := Counts{Completed: b.completed, DeadLetter: len(b.deadLetter), Connected: b.connected}
	for _, env := range b.envelopes {
		switch env.state {
		case statePending:
			c.Pending++
		case stateProcessing:
			c.Processing++
		}
	}
	return c
}

// Connected reports whether the Redis mirror is reachable.
func (b *Broker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// DeadLetters returns the ids of dead-lettered tickets.
func (b *Broker) DeadLetters() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.deadLetter))
	copy(out, b.deadLetter)
	return out
}

func (b *Broker) leasedLocked(ticketID, token string) (*envelope, error) {
	env, ok := b.envelopes[ticketID]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if env.state != stateProcessing || env.LockToken != token {
		return nil, apperrors.NewConflict("lease token mismatch", map[string]any{"ticket_id": ticketID})
	}
	return env, nil
}

// mirror applies Redis bookkeeping best-effort. Any failure flips the broker
// into degraded mode; in-memory state stays authoritative either way.
func (b *Broker) mirror(ctx context.Context, fn func(redis.Pipeliner)) {
	if b.rdb == nil || !b.connected {
		return
	}
	pipe := b.rdb.Pipeline()
	fn(pipe)
	if _, err := pipe.Exec(ctx); err != nil {
		b.connected = false
		if b.logger != nil {
			b.logger.Warn("redis mirror failed, broker degraded to in-memory", zap.Error(err))
		}
	}
}
