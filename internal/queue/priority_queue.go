// Package queue implements the in-memory priority queue ordering pending
// tickets by priority, then arrival.
package queue

import (
	"container/heap"
	"sync"
)

// Item is a queued ticket reference.
type Item struct {
	TicketID string
	Priority float64
	// Seq is the arrival sequence; among equal priorities the lowest wins,
	// giving FIFO behavior. A re-enqueued (paused) ticket keeps its original
	// sequence and so its original place among peers.
	Seq   uint64
	index int
}

// PriorityQueue is a thread-safe max-heap keyed by ticket id so priorities
// can be updated in place in O(log n).
type PriorityQueue struct {
	mu    sync.Mutex
	items itemHeap
	byID  map[string]*Item
}

// New creates an empty queue.
func New() *PriorityQueue {
	return &PriorityQueue{byID: make(map[string]*Item)}
}

// Enqueue adds a ticket. Enqueueing an id already present is a no-op
// returning false; idempotence at the intake boundary is the broker's job,
// this guard keeps the heap consistent.
func (q *PriorityQueue) Enqueue(ticketID string, priority float64, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byID[ticketID]; exists {
		return false
	}
	item := &Item{TicketID: ticketID, Priority: priority, Seq: seq}
	heap.Push(&q.items, item)
	q.byID[ticketID] = item
	return true
}

// Dequeue removes and returns the highest-priority ticket id.
func (q *PriorityQueue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return "", false
	}
	item := heap.Pop(&q.items).(*Item)
	delete(q.byID, item.TicketID)
	return item.TicketID, true
}

// Peek returns the head without removing it.
func (q *PriorityQueue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return Item{}, false
	}
	return *q.items[0], true
}

// UpdatePriority repositions a queued ticket. Returns false when the ticket
// is not queued (already dispatched tickets are never reordered).
func (q *PriorityQueue) UpdatePriority(ticketID string, priority float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[ticketID]
	if !ok {
		return false
	}
	item.Priority = priority
	heap.Fix(&q.items, item.index)
	return true
}

// Remove withdraws a ticket from the queue.
func (q *PriorityQueue) Remove(ticketID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[ticketID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, ticketID)
	return true
}

// Contains reports whether the ticket is queued.
func (q *PriorityQueue) Contains(ticketID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[ticketID]
	return ok
}

// Len returns the number of queued tickets.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Rank returns the advisory 1-based queue position of a ticket: one plus the
// number of queued tickets that would dequeue before it.
func (q *PriorityQueue) Rank(ticketID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[ticketID]
	if !ok {
		return 0
	}
	rank := 1
	for _, other := range q.items {
		if other.TicketID == ticketID {
			continue
		}
		if other.Priority > item.Priority || (other.Priority == item.Priority && other.Seq < item.Seq) {
			rank++
		}
	}
	return rank
}

// itemHeap implements heap.Interface ordered by priority descending, then
// arrival sequence ascending.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
