package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/queue"
)

type capturingArchiver struct {
	records []DeadLetterRecord
}

func (a *capturingArchiver) Archive(_ context.Context, rec DeadLetterRecord) error {
	a.records = append(a.records, rec)
	return nil
}

func newBroker(archiver DeadLetterArchiver) *Broker {
	return New(queue.New(), nil, config.BrokerConfig{MaxRetries: 2, LeaseTTLSec: 60, QueuePrefix: "test"}, archiver, nil)
}

// expireLease rewinds a lease deadline so tests exercise expiry without
// sleeping.
func expireLease(b *Broker, ticketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes[ticketID].leaseDeadline = time.Now().Add(-time.Second)
}

func TestEnqueueIdempotent(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()

	pos := b.Enqueue(ctx, "TKT-1", 0.5, 1)
	assert.Equal(t, 1, pos)

	// A duplicate submission before ack is a no-op reporting the same rank.
	pos = b.Enqueue(ctx, "TKT-1", 0.9, 2)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 1, b.Counts().Pending)

	pos = b.Enqueue(ctx, "TKT-2", 0.9, 3)
	assert.Equal(t, 1, pos, "higher priority goes to the head")
}

func TestLeaseExclusivity(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	assert.Equal(t, "TKT-1", envelope.TicketID)
	assert.NotEmpty(t, envelope.LockToken)

	_, ok = b.LeaseNext(ctx)
	assert.False(t, ok, "a leased ticket is not pending")

	_, err := b.Lease(ctx, "TKT-1")
	assert.Error(t, err, "explicit lease on a processing ticket conflicts")

	counts := b.Counts()
	assert.Zero(t, counts.Pending)
	assert.Equal(t, 1, counts.Processing)
}

func TestAckRequiresToken(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)
	envelope, _ := b.LeaseNext(ctx)

	assert.Error(t, b.Ack(ctx, "TKT-1", "stale-token"))
	require.NoError(t, b.Ack(ctx, "TKT-1", envelope.LockToken))

	counts := b.Counts()
	assert.Zero(t, counts.Processing)
	assert.Equal(t, 1, counts.Completed)

	assert.Error(t, b.Ack(ctx, "TKT-1", envelope.LockToken), "double ack")
}

func TestNackRetriesThenDeadLetters(t *testing.T) {
	archiver := &capturingArchiver{}
	b := newBroker(archiver)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	for attempt := 0; attempt < 2; attempt++ {
		envelope, ok := b.LeaseNext(ctx)
		require.True(t, ok)
		deadLettered, err := b.Nack(ctx, "TKT-1", envelope.LockToken, "agent error")
		require.NoError(t, err)
		assert.False(t, deadLettered)
		assert.Equal(t, 1, b.Counts().Pending, "requeued for retry")
	}

	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, envelope.RetryCount)

	deadLettered, err := b.Nack(ctx, "TKT-1", envelope.LockToken, "agent error")
	require.NoError(t, err)
	assert.True(t, deadLettered)

	counts := b.Counts()
	assert.Zero(t, counts.Pending)
	assert.Equal(t, 1, counts.DeadLetter)
	assert.Equal(t, []string{"TKT-1"}, b.DeadLetters())

	require.Len(t, archiver.records, 1)
	assert.Equal(t, "TKT-1", archiver.records[0].TicketID)
	assert.Equal(t, 3, archiver.records[0].RetryCount)
	assert.Equal(t, "agent error", archiver.records[0].Reason)

	// Dead-lettered tickets are terminal for the broker.
	_, ok = b.LeaseNext(ctx)
	assert.False(t, ok)
	assert.Error(t, b.Withdraw(ctx, "TKT-1"))
}

func TestRequeueSpendsNoRetryBudget(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	for i := 0; i < 5; i++ {
		envelope, ok := b.LeaseNext(ctx)
		require.True(t, ok)
		require.NoError(t, b.Requeue(ctx, "TKT-1", envelope.LockToken))
	}

	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	assert.Zero(t, envelope.RetryCount, "capacity exhaustion never counts against retries")
}

func TestWithdraw(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	require.NoError(t, b.Withdraw(ctx, "TKT-1"))
	assert.Zero(t, b.Counts().Pending)
	assert.Error(t, b.Withdraw(ctx, "TKT-1"))

	b.Enqueue(ctx, "TKT-2", 0.5, 2)
	_, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	assert.Error(t, b.Withdraw(ctx, "TKT-2"), "leased tickets cannot be withdrawn")
}

func TestUpdatePriorityOnlyWhilePending(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.2, 1)
	b.Enqueue(ctx, "TKT-2", 0.8, 2)

	require.True(t, b.UpdatePriority("TKT-1", 0.95))
	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	assert.Equal(t, "TKT-1", envelope.TicketID)
	assert.InDelta(t, 0.95, envelope.Priority, 1e-9)

	assert.False(t, b.UpdatePriority("TKT-1", 0.1), "leased ticket is not repositioned")
	assert.False(t, b.UpdatePriority("missing", 0.5))
}

func TestExpiredLeaseReclaimed(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	stale, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	expireLease(b, "TKT-1")

	reclaimed, ok := b.LeaseNext(ctx)
	require.True(t, ok, "expired lease returns to pending")
	assert.Equal(t, "TKT-1", reclaimed.TicketID)
	assert.Equal(t, 1, reclaimed.RetryCount, "expiry spends one retry")
	assert.NotEqual(t, stale.LockToken, reclaimed.LockToken)

	assert.Error(t, b.Ack(ctx, "TKT-1", stale.LockToken), "reclaimed lease invalidates the old token")
	require.NoError(t, b.Ack(ctx, "TKT-1", reclaimed.LockToken))
}

func TestExpiredLeaseDeadLettersWhenBudgetSpent(t *testing.T) {
	archiver := &capturingArchiver{}
	b := newBroker(archiver)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	for i := 0; i < 3; i++ {
		_, ok := b.LeaseNext(ctx)
		require.True(t, ok)
		expireLease(b, "TKT-1")
	}

	_, ok := b.LeaseNext(ctx)
	assert.False(t, ok, "third expiry exhausts the retry budget")
	assert.Equal(t, 1, b.Counts().DeadLetter)
	require.Len(t, archiver.records, 1)
	assert.Equal(t, "lease expired", archiver.records[0].Reason)
	assert.Equal(t, 3, archiver.records[0].RetryCount)
}

func TestZeroLeaseTTLDisablesExpiry(t *testing.T) {
	b := New(queue.New(), nil, config.BrokerConfig{MaxRetries: 2, QueuePrefix: "test"}, nil, nil)
	ctx := context.Background()
	b.Enqueue(ctx, "TKT-1", 0.5, 1)

	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	expireLease(b, "TKT-1")

	_, ok = b.LeaseNext(ctx)
	assert.False(t, ok, "leases are held indefinitely when the TTL is zero")
	require.NoError(t, b.Ack(ctx, "TKT-1", envelope.LockToken))
}

func TestBrokerRunsDegradedWithoutRedis(t *testing.T) {
	b := newBroker(nil)
	ctx := context.Background()

	assert.False(t, b.Connected())

	b.Enqueue(ctx, "TKT-1", 0.5, 1)
	envelope, ok := b.LeaseNext(ctx)
	require.True(t, ok)
	require.NoError(t, b.Ack(ctx, "TKT-1", envelope.LockToken))

	counts := b.Counts()
	assert.Equal(t, 1, counts.Completed)
	assert.False(t, counts.Connected, "degraded mode is reported, not fatal")
}
