package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/events"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/scheduler"
)

// DispatchWorker drains the broker and drives the scheduler. Each worker
// leases one ticket at a time; the lease token guarantees exclusive
// processing even with multiple workers polling concurrently.
type DispatchWorker struct {
	broker     *broker.Broker
	scheduler  *scheduler.Scheduler
	tickets    *repository.TicketStore
	dispatcher events.Dispatcher
	count      int
	interval   time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
}

// Dependencies bundles collaborators.
type Dependencies struct {
	Broker     *broker.Broker
	Scheduler  *scheduler.Scheduler
	Tickets    *repository.TicketStore
	Dispatcher events.Dispatcher
}

// NewDispatchWorker creates the worker pool.
func NewDispatchWorker(cfg config.WorkerConfig, deps Dependencies, logger *zap.Logger) *DispatchWorker {
	return &DispatchWorker{
		broker:     deps.Broker,
		scheduler:  deps.Scheduler,
		tickets:    deps.Tickets,
		dispatcher: deps.Dispatcher,
		count:      cfg.Count,
		interval:   cfg.PollInterval(),
		logger:     logger,
	}
}

// Start launches the pool. Workers exit when ctx is cancelled; Wait blocks
// until they are all done.
func (w *DispatchWorker) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have stopped.
func (w *DispatchWorker) Wait() {
	w.wg.Wait()
}

func (w *DispatchWorker) run(ctx context.Context, id int) {
	w.logger.Info("dispatch worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopped", zap.Int("worker_id", id))
			return
		default:
		}

		envelope, ok := w.broker.LeaseNext(ctx)
		if !ok {
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		w.process(ctx, envelope)
	}
}

// process runs one dispatch attempt under the lease. Every exit path
// releases the lease: Ack on assignment or skip, Requeue when all agents are
// saturated, Nack on errors so the retry budget applies.
func (w *DispatchWorker) process(ctx context.Context, envelope broker.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("dispatch panicked",
				zap.String("ticket_id", envelope.TicketID),
				zap.Any("panic", r))
			w.nack(ctx, envelope, fmt.Sprintf("panic: %v", r))
		}
	}()

	decision, err := w.scheduler.Dispatch(ctx, envelope.TicketID)
	if err != nil {
		w.logger.Warn("dispatch failed",
			zap.String("ticket_id", envelope.TicketID),
			zap.Error(err))
		w.nack(ctx, envelope, err.Error())
		return
	}

	switch {
	case decision.Assigned, decision.Skipped:
		if err := w.broker.Ack(ctx, envelope.TicketID, envelope.LockToken); err != nil {
			w.logger.Warn("ack failed", zap.String("ticket_id", envelope.TicketID), zap.Error(err))
		}
	default:
		// Capacity exhaustion is not a failure: put the ticket back without
		// spending a retry and back off before polling again.
		if err := w.broker.Requeue(ctx, envelope.TicketID, envelope.LockToken); err != nil {
			w.logger.Warn("requeue failed", zap.String("ticket_id", envelope.TicketID), zap.Error(err))
		}
		w.sleep(ctx)
	}
}

func (w *DispatchWorker) nack(ctx context.Context, envelope broker.Envelope, reason string) {
	deadLettered, err := w.broker.Nack(ctx, envelope.TicketID, envelope.LockToken, reason)
	if err != nil {
		w.logger.Warn("nack failed", zap.String("ticket_id", envelope.TicketID), zap.Error(err))
		return
	}
	if !deadLettered {
		return
	}
	w.tickets.Update(envelope.TicketID, func(t *domain.Ticket) {
		t.Status = domain.TicketStatusDeadLetter
		t.AssignedAgentID = nil
	})
	if w.dispatcher != nil {
		_ = w.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketDeadLettered,
			TicketID:  envelope.TicketID,
			Timestamp: time.Now(),
			Payload: events.TicketDeadLetteredPayload{
				RetryCount: envelope.RetryCount + 1,
				Reason:     reason,
			},
		})
	}
}

// sleep waits one poll interval; returns false when ctx was cancelled.
func (w *DispatchWorker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
