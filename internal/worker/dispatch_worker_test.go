package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
	"github.com/spec-kit/routing-engine/internal/events"
	"github.com/spec-kit/routing-engine/internal/queue"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/routing"
	"github.com/spec-kit/routing-engine/internal/scheduler"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (r *recordingDispatcher) count(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type workerFixture struct {
	tickets    *repository.TicketStore
	router     *routing.Router
	broker     *broker.Broker
	worker     *DispatchWorker
	dispatcher *recordingDispatcher
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	tickets := repository.NewTicketStore()
	router := routing.NewRouter(10, nil)
	b := broker.New(queue.New(), nil, config.BrokerConfig{MaxRetries: 1, QueuePrefix: "test"}, nil, nil)
	dispatcher := &recordingDispatcher{}
	sched := scheduler.New(config.SchedulerConfig{PreemptionMargin: 0.2}, scheduler.Dependencies{
		Tickets:    tickets,
		Router:     router,
		Broker:     b,
		Dispatcher: dispatcher,
	}, nil)
	w := NewDispatchWorker(config.WorkerConfig{Count: 1, PollIntervalMS: 1}, Dependencies{
		Broker:     b,
		Scheduler:  sched,
		Tickets:    tickets,
		Dispatcher: dispatcher,
	}, zap.NewNop())
	return &workerFixture{tickets: tickets, router: router, broker: b, worker: w, dispatcher: dispatcher}
}

func (f *workerFixture) submit(t *testing.T, id string, priority float64) {
	t.Helper()
	ticket := &domain.Ticket{
		ID:       id,
		Subject:  id,
		Category: domain.CategoryGeneral,
		Urgency:  priority,
		Priority: priority,
		Status:   domain.TicketStatusQueued,
	}
	require.True(t, f.tickets.Create(ticket))
	f.broker.Enqueue(context.Background(), id, priority, ticket.ArrivalSeq)
}

func TestProcessAssignsAndAcks(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	_, err := f.router.RegisterAgent("alice", map[domain.Category]float64{domain.CategoryGeneral: 0.8}, 1)
	require.NoError(t, err)
	f.submit(t, "TKT-1", 0.5)

	envelope, ok := f.broker.LeaseNext(ctx)
	require.True(t, ok)
	f.worker.process(ctx, envelope)

	stored, _ := f.tickets.Get("TKT-1")
	assert.Equal(t, domain.TicketStatusActive, stored.Status)

	counts := f.broker.Counts()
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.Processing)
	assert.Equal(t, 1, counts.Completed)
}

func TestProcessRequeuesWhenSaturated(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	// No agents registered: every dispatch pass comes back unassigned.
	f.submit(t, "TKT-1", 0.5)

	envelope, ok := f.broker.LeaseNext(ctx)
	require.True(t, ok)
	f.worker.process(ctx, envelope)

	counts := f.broker.Counts()
	assert.Equal(t, 1, counts.Pending, "ticket stays queued")
	assert.Zero(t, counts.DeadLetter, "capacity exhaustion is not a failure")

	envelope, ok = f.broker.LeaseNext(ctx)
	require.True(t, ok)
	assert.Zero(t, envelope.RetryCount)
}

func TestProcessDeadLettersAfterRetryBudget(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	// An envelope with no backing ticket makes every dispatch fail.
	f.broker.Enqueue(ctx, "TKT-GHOST", 0.5, 1)

	for i := 0; i < 2; i++ {
		envelope, ok := f.broker.LeaseNext(ctx)
		require.True(t, ok)
		f.worker.process(ctx, envelope)
	}

	counts := f.broker.Counts()
	assert.Equal(t, 1, counts.DeadLetter)
	assert.Zero(t, counts.Pending)
	assert.Equal(t, 1, f.dispatcher.count(events.EventTicketDeadLettered))
}

func TestWorkerPoolDrainsQueue(t *testing.T) {
	f := newWorkerFixture(t)
	_, err := f.router.RegisterAgent("alice", map[domain.Category]float64{domain.CategoryGeneral: 0.8}, 5)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		f.submit(t, "TKT-"+string(rune('A'+i)), 0.5)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)

	require.Eventually(t, func() bool {
		return f.broker.Counts().Completed == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	f.worker.Wait()

	for _, id := range []string{"TKT-A", "TKT-B", "TKT-C"} {
		stored, ok := f.tickets.Get(id)
		require.True(t, ok)
		assert.Equal(t, domain.TicketStatusActive, stored.Status)
	}
}
