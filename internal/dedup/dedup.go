// Package dedup clusters near-duplicate tickets into master incidents using
// cosine similarity over externally computed content vectors.
package dedup

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
)

// Match describes the clustering outcome for one ticket.
type Match struct {
	IsDuplicate bool
	ClusterID   string
	// AggregateUrgency is the cluster's urgency the joined ticket inherits
	// for scheduling. Zero value when not a duplicate.
	AggregateUrgency float64
	// Storm is set when the cluster crossed the storm count threshold with
	// this ticket.
	Storm bool
}

type entry struct {
	ticketID  string
	vector    domain.Vector
	urgency   float64
	clusterID string
	addedAt   time.Time
}

// Stats is a read-only snapshot of clustering state.
type Stats struct {
	TrackedTickets  int     `json:"tracked_tickets"`
	MasterIncidents int     `json:"master_incidents"`
	TotalSuppressed int     `json:"total_suppressed"`
	Threshold       float64 `json:"similarity_threshold"`
}

// Deduplicator performs incremental clustering. New tickets are compared only
// against the bounded recent window, and a cluster keeps its first ticket's
// vector as representative; the representative is never recomputed.
type Deduplicator struct {
	mu        sync.Mutex
	window    []entry
	clusters  map[string]*domain.MasterIncident
	order     []string
	threshold float64
	windowTTL time.Duration
	stormN    int
	now       func() time.Time
}

// New constructs a deduplicator from validated configuration.
func New(cfg config.DedupConfig) *Deduplicator {
	return &Deduplicator{
		clusters:  make(map[string]*domain.MasterIncident),
		threshold: cfg.SimilarityThreshold,
		windowTTL: cfg.Window(),
		stormN:    cfg.StormCountThreshold,
		now:       time.Now,
	}
}

// Observe records a ticket's vector and reports whether it joins an existing
// master incident. Tickets without a vector never cluster. Clustering never
// blocks dispatch; this runs alongside classification.
func (d *Deduplicator) Observe(ticket *domain.Ticket) Match {
	if len(ticket.ContentVector) == 0 {
		return Match{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked()

	// Compare against cluster representatives first, then unclustered
	// tickets in the window. Clusters are scanned in creation order so a
	// vector clearing the threshold against several representatives always
	// joins the oldest one.
	for _, id := range d.order {
		incident := d.clusters[id]
		if Cosine(ticket.ContentVector, incident.Representative) >= d.threshold {
			return d.joinLocked(ticket, incident)
		}
	}

	for i := range d.window {
		other := &d.window[i]
		if other.clusterID != "" {
			continue
		}
		sim := Cosine(ticket.ContentVector, other.vector)
		if sim >= d.threshold {
			incident := d.promoteLocked(other, sim)
			return d.joinLocked(ticket, incident)
		}
	}

	d.window = append(d.window, entry{
		ticketID: ticket.ID,
		vector:   ticket.ContentVector,
		urgency:  ticket.Urgency,
		addedAt:  d.now(),
	})
	return Match{}
}

// Get returns a copy of a master incident.
func (d *Deduplicator) Get(clusterID string) (domain.MasterIncident, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	incident, ok := d.clusters[clusterID]
	if !ok {
		return domain.MasterIncident{}, false
	}
	out := *incident
	out.TicketIDs = append([]string(nil), incident.TicketIDs...)
	return out, true
}

// List returns copies of all master incidents in creation order.
func (d *Deduplicator) List() []domain.MasterIncident {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.MasterIncident, 0, len(d.clusters))
	for _, id := range d.order {
		incident := d.clusters[id]
		copied := *incident
		copied.TicketIDs = append([]string(nil), incident.TicketIDs...)
		out = append(out, copied)
	}
	return out
}

// Stats returns clustering statistics.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		TrackedTickets:  len(d.window),
		MasterIncidents: len(d.clusters),
		Threshold:       d.threshold,
	}
	for _, incident := range d.clusters {
		s.TotalSuppressed += incident.SuppressedCount
	}
	return s
}

// promoteLocked creates a master incident around an unclustered window entry.
// The first ticket's vector becomes the representative.
func (d *Deduplicator) promoteLocked(first *entry, similarity float64) *domain.MasterIncident {
	id := "MASTER-" + strings.ToUpper(uuid.NewString()[:8])
	incident := &domain.MasterIncident{
		ID:               id,
		Representative:   first.vector,
		TicketIDs:        []string{first.ticketID},
		SimilarityScore:  similarity,
		AggregateUrgency: first.urgency,
		CreatedAt:        d.now(),
	}
	first.clusterID = id
	d.clusters[id] = incident
	d.order = append(d.order, id)
	return incident
}

func (d *Deduplicator) joinLocked(ticket *domain.Ticket, incident *domain.MasterIncident) Match {
	incident.TicketIDs = append(incident.TicketIDs, ticket.ID)
	incident.SuppressedCount++
	if ticket.Urgency > incident.AggregateUrgency {
		incident.AggregateUrgency = ticket.Urgency
	}
	if incident.Category == "" {
		incident.Category = ticket.Category
	}
	return Match{
		IsDuplicate:      true,
		ClusterID:        incident.ID,
		AggregateUrgency: incident.AggregateUrgency,
		Storm:            len(incident.TicketIDs) == d.stormN,
	}
}

func (d *Deduplicator) pruneLocked() {
	cutoff := d.now().Add(-d.windowTTL)
	kept := d.window[:0]
	for _, e := range d.window {
		if e.addedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.window = kept
}

// Cosine returns the cosine similarity of two vectors, zero when lengths
// differ or either vector is all zeros.
func Cosine(a, b domain.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
