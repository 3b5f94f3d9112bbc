// Package routing holds the agent registry and the skill-based router that
// scores agent/ticket fit.
package routing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/domain"
	apperrors "github.com/spec-kit/routing-engine/pkg/util"
)

// Archiver persists routing history entries beyond the in-memory window.
type Archiver interface {
	Create(ctx context.Context, entry domain.RoutingHistoryEntry) error
}

// Router owns the agent registry, scores candidates for tickets and keeps the
// append-only routing history. It is an explicitly constructed service, not a
// process-wide singleton, so tests can run isolated instances.
type Router struct {
	mu               sync.Mutex
	agents           map[string]*domain.Agent
	order            []string
	nextSeq          uint64
	history          []domain.RoutingHistoryEntry
	historyWindow    int
	totalAssignments uint64
	archiver         Archiver
	logger           *zap.Logger
}

// Stats is a read-only snapshot of registry state.
type Stats struct {
	TotalAgents      int     `json:"total_agents"`
	AvailableAgents  int     `json:"available_agents"`
	TotalLoad        int     `json:"total_load"`
	TotalCapacity    int     `json:"total_capacity"`
	Utilization      float64 `json:"utilization"`
	TotalAssignments uint64  `json:"total_assignments"`
}

// NewRouter constructs a router keeping at most historyWindow recent entries
// in memory.
func NewRouter(historyWindow int, logger *zap.Logger) *Router {
	if historyWindow <= 0 {
		historyWindow = 100
	}
	return &Router{
		agents:        make(map[string]*domain.Agent),
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// RegisterAgent adds an agent to the registry and returns it.
func (r *Router) RegisterAgent(name string, skills map[domain.Category]float64, capacity int) (*domain.Agent, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("agent name required", nil)
	}
	if capacity < 1 {
		return nil, apperrors.NewValidationError("capacity must be at least 1", map[string]any{"capacity": capacity})
	}
	for category, proficiency := range skills {
		if !category.Valid() {
			return nil, apperrors.NewValidationError("unknown skill category", map[string]any{"category": category})
		}
		if proficiency < 0 || proficiency > 1 {
			return nil, apperrors.NewValidationError("proficiency must be in [0,1]", map[string]any{"category": category})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	agent := &domain.Agent{
		ID:              uuid.NewString(),
		Name:            name,
		Skills:          skills,
		Capacity:        capacity,
		Status:          domain.AgentStatusAvailable,
		RegistrationSeq: r.nextSeq,
		CreatedAt:       time.Now(),
	}
	r.nextSeq++
	r.agents[agent.ID] = agent
	r.order = append(r.order, agent.ID)
	if r.logger != nil {
		r.logger.Info("agent registered", zap.String("agent_id", agent.ID), zap.String("name", name))
	}
	return agent, nil
}

// UpdateStatus sets an agent's status. Offline is only ever set here; derived
// busy/available states are recomputed on load changes.
func (r *Router) UpdateStatus(agentID string, status domain.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}
	agent.Status = status
	if status != domain.AgentStatusOffline {
		agent.DeriveStatus()
	}
	return nil
}

// Get returns a copy of the agent.
func (r *Router) Get(agentID string) (domain.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	return *agent, true
}

// List returns copies of all agents in registration order.
func (r *Router) List() []domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.agents[id])
	}
	return out
}

// Route picks the best available agent for the ticket, accepts the ticket on
// that agent and records a history entry. The returned score is the winning
// agent's at decision time. Returns false when no agent is eligible; the
// caller must leave the ticket queued.
func (r *Router) Route(ticket *domain.Ticket) (string, float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := r.bestCandidateLocked(ticket)
	if best == nil {
		return "", 0, false
	}

	winning := score(best, ticket)
	best.CurrentLoad++
	best.DeriveStatus()
	r.totalAssignments++
	r.appendHistoryLocked(domain.RoutingHistoryEntry{
		TicketID:  ticket.ID,
		AgentID:   best.ID,
		Score:     winning,
		Timestamp: time.Now(),
	})
	return best.ID, winning, true
}

// Release decrements an agent's load after a ticket leaves its slot.
func (r *Router) Release(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}
	if agent.CurrentLoad > 0 {
		agent.CurrentLoad--
	}
	agent.DeriveStatus()
	return nil
}

// Qualified returns agents skilled for the category, in registration order.
func (r *Router) Qualified(category domain.Category) []domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Agent, 0)
	for _, id := range r.order {
		agent := r.agents[id]
		if agent.Status != domain.AgentStatusOffline && agent.Skill(category) > 0 {
			out = append(out, *agent)
		}
	}
	return out
}

// History returns the bounded recent routing history, newest last.
func (r *Router) History() []domain.RoutingHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RoutingHistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

// Stats returns registry statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{TotalAgents: len(r.agents), TotalAssignments: r.totalAssignments}
	for _, agent := range r.agents {
		if agent.CanAccept() {
			s.AvailableAgents++
		}
		s.TotalLoad += agent.CurrentLoad
		s.TotalCapacity += agent.Capacity
	}
	if s.TotalCapacity > 0 {
		s.Utilization = float64(s.TotalLoad) / float64(s.TotalCapacity)
	}
	return s
}

func (r *Router) bestCandidateLocked(ticket *domain.Ticket) *domain.Agent {
	candidates := make([]*domain.Agent, 0)
	for _, id := range r.order {
		agent := r.agents[id]
		if agent.CanAccept() {
			candidates = append(candidates, agent)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		sa, sb := score(a, ticket), score(b, ticket)
		if sa != sb {
			return sa > sb
		}
		if a.Skill(ticket.Category) != b.Skill(ticket.Category) {
			return a.Skill(ticket.Category) > b.Skill(ticket.Category)
		}
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		return a.RegistrationSeq < b.RegistrationSeq
	})
	return candidates[0]
}

// score blends skill match with availability. The urgency weight is monotonic
// non-decreasing in urgency, so high-urgency tickets lean harder on skill
// match while low-urgency ones favor spreading load.
func score(agent *domain.Agent, ticket *domain.Ticket) float64 {
	skill := agent.Skill(ticket.Category)
	loadFactor := 1.0 - float64(agent.CurrentLoad)/float64(agent.Capacity)
	urgencyWeight := 0.7 + 0.3*ticket.Urgency
	return skill*urgencyWeight + loadFactor*(1-urgencyWeight)
}

// SetArchiver wires an external history archive; entries are written
// best-effort off the router lock.
func (r *Router) SetArchiver(archiver Archiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archiver = archiver
}

func (r *Router) appendHistoryLocked(entry domain.RoutingHistoryEntry) {
	r.history = append(r.history, entry)
	if len(r.history) > r.historyWindow {
		r.history = r.history[len(r.history)-r.historyWindow:]
	}
	if r.archiver != nil {
		archiver := r.archiver
		go func() {
			if err := archiver.Create(context.Background(), entry); err != nil && r.logger != nil {
				r.logger.Warn("routing history archive failed", zap.Error(err))
			}
		}()
	}
}
