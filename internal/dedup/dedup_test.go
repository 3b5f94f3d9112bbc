package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
)

func testDedup() *Deduplicator {
	return New(config.DedupConfig{
		SimilarityThreshold: 0.9,
		WindowMinutes:       5,
		StormCountThreshold: 4,
	})
}

func vecTicket(id string, urgency float64, vector ...float64) *domain.Ticket {
	return &domain.Ticket{
		ID:            id,
		Urgency:       urgency,
		Category:      domain.CategoryTechnical,
		ContentVector: vector,
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b domain.Vector
		want float64
	}{
		{"identical", domain.Vector{1, 0, 1}, domain.Vector{1, 0, 1}, 1.0},
		{"orthogonal", domain.Vector{1, 0}, domain.Vector{0, 1}, 0.0},
		{"opposite", domain.Vector{1, 0}, domain.Vector{-1, 0}, -1.0},
		{"length mismatch", domain.Vector{1, 0}, domain.Vector{1, 0, 0}, 0.0},
		{"zero vector", domain.Vector{0, 0}, domain.Vector{1, 1}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Cosine(tc.a, tc.b), 1e-9)
		})
	}
}

func TestObserveClustersSimilarTickets(t *testing.T) {
	d := testDedup()

	first := d.Observe(vecTicket("TKT-1", 0.5, 1, 0.1, 0))
	assert.False(t, first.IsDuplicate, "first occurrence is not a duplicate")

	second := d.Observe(vecTicket("TKT-2", 0.3, 1, 0.12, 0))
	require.True(t, second.IsDuplicate)
	assert.NotEmpty(t, second.ClusterID)
	assert.InDelta(t, 0.5, second.AggregateUrgency, 1e-9, "cluster urgency is the max over members")

	incident, ok := d.Get(second.ClusterID)
	require.True(t, ok)
	assert.Equal(t, []string{"TKT-1", "TKT-2"}, incident.TicketIDs)
	assert.Equal(t, 1, incident.SuppressedCount, "the founding ticket is not suppressed")
	assert.Equal(t, domain.Vector{1, 0.1, 0}, incident.Representative, "first vector stays representative")
}

func TestObserveDistinctTicketsStayApart(t *testing.T) {
	d := testDedup()

	d.Observe(vecTicket("TKT-1", 0.5, 1, 0, 0))
	match := d.Observe(vecTicket("TKT-2", 0.5, 0.3, 0.9, 0.1))

	assert.False(t, match.IsDuplicate)
	assert.Equal(t, 0, d.Stats().MasterIncidents)
	assert.Equal(t, 2, d.Stats().TrackedTickets)
}

func TestObserveRaisesAggregateUrgency(t *testing.T) {
	d := testDedup()

	d.Observe(vecTicket("TKT-1", 0.2, 0, 1, 0))
	match := d.Observe(vecTicket("TKT-2", 0.9, 0, 1, 0))

	require.True(t, match.IsDuplicate)
	assert.InDelta(t, 0.9, match.AggregateUrgency, 1e-9)

	// A later low-urgency member still inherits the raised aggregate.
	match = d.Observe(vecTicket("TKT-3", 0.1, 0, 1, 0))
	require.True(t, match.IsDuplicate)
	assert.InDelta(t, 0.9, match.AggregateUrgency, 1e-9)
}

func TestObserveJoinsOldestMatchingCluster(t *testing.T) {
	d := testDedup()

	// Two clusters whose representatives are ~50 degrees apart (similarity
	// 0.64, well under the threshold), each ~25 degrees from the midline
	// vector observed last (similarity 0.906, above it).
	a := d.Observe(vecTicket("TKT-A1", 0.5, 0.9063, 0.4226))
	require.False(t, a.IsDuplicate)
	a = d.Observe(vecTicket("TKT-A2", 0.5, 0.9063, 0.4226))
	require.True(t, a.IsDuplicate)

	b := d.Observe(vecTicket("TKT-B1", 0.5, 0.9063, -0.4226))
	require.False(t, b.IsDuplicate)
	b = d.Observe(vecTicket("TKT-B2", 0.5, 0.9063, -0.4226))
	require.True(t, b.IsDuplicate)
	require.NotEqual(t, a.ClusterID, b.ClusterID)

	mid := d.Observe(vecTicket("TKT-MID", 0.5, 1, 0))
	require.True(t, mid.IsDuplicate)
	assert.Equal(t, a.ClusterID, mid.ClusterID, "both clusters match; the earlier-created one wins")

	incidents := d.List()
	require.Len(t, incidents, 2)
	assert.Equal(t, a.ClusterID, incidents[0].ID, "incidents list in creation order")
	assert.Equal(t, b.ClusterID, incidents[1].ID)
}

func TestObserveStormPromotion(t *testing.T) {
	d := testDedup()

	var last Match
	for i := 1; i <= 4; i++ {
		last = d.Observe(vecTicket(fmt.Sprintf("TKT-%d", i), 0.5, 1, 1, 0))
		if i < 4 {
			assert.False(t, last.Storm)
		}
	}

	assert.True(t, last.Storm, "storm flag fires when the cluster hits the count threshold")

	// Growth past the threshold does not re-fire the storm signal.
	last = d.Observe(vecTicket("TKT-5", 0.5, 1, 1, 0))
	assert.False(t, last.Storm)
}

func TestObserveIgnoresTicketsWithoutVectors(t *testing.T) {
	d := testDedup()

	match := d.Observe(&domain.Ticket{ID: "TKT-1", Urgency: 0.5})

	assert.False(t, match.IsDuplicate)
	assert.Zero(t, d.Stats().TrackedTickets)
}

func TestObserveWindowExpiry(t *testing.T) {
	d := testDedup()
	current := time.Now()
	d.now = func() time.Time { return current }

	d.Observe(vecTicket("TKT-OLD", 0.5, 1, 0, 0))

	// Past the window the old ticket no longer attracts duplicates.
	current = current.Add(6 * time.Minute)
	match := d.Observe(vecTicket("TKT-NEW", 0.5, 1, 0, 0))

	assert.False(t, match.IsDuplicate)
	assert.Equal(t, 1, d.Stats().TrackedTickets, "expired entries are pruned")
}
