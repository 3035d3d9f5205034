package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LifecycleEvent names a registry lifecycle change.
type LifecycleEvent string

const (
	// EventRegistered fires when an agent joins the registry.
	EventRegistered LifecycleEvent = "registered"

	// EventUnregistered fires when an agent is removed.
	EventUnregistered LifecycleEvent = "unregistered"

	// EventOffline fires when an agent is marked unreachable.
	EventOffline LifecycleEvent = "offline"
)

// Criteria describes the task a worker agent is needed for.
type Criteria struct {
	// Capabilities lists required capability names; all must be present.
	Capabilities []string `json:"capabilities"`

	// Domain optionally biases ranking toward agents tagged for it.
	Domain string `json:"domain,omitempty"`
}

// Candidate is one ranked agent match.
type Candidate struct {
	// AgentID identifies the agent.
	AgentID string `json:"agent_id"`

	// Score ranks the match in [0,1]; higher is better.
	Score float64 `json:"score"`
}

// Registry resolves worker agents for tasks and emits lifecycle events.
type Registry interface {
	// FindAgentsForTask returns candidates ranked by score descending.
	// Returns ErrNoCandidates when no agent satisfies the criteria.
	FindAgentsForTask(ctx context.Context, criteria Criteria) ([]Candidate, error)

	// AgentInstance returns the delegation handle for an agent id.
	AgentInstance(agentID string) (Worker, bool)

	// HasCapability reports whether any registered agent provides the
	// capability. Used by plan validation.
	HasCapability(capability string) bool

	// Subscribe registers a lifecycle event listener.
	Subscribe(fn func(event LifecycleEvent, agentID string))
}

// registration holds one agent's registry record.
type registration struct {
	worker       Worker
	capabilities map[string]bool
	domains      map[string]bool
	registeredAt time.Time
	offline      bool
}

// InMemoryRegistry is a mutex-guarded Registry implementation used for
// wiring and tests. Production deployments plug in the platform registry.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	agents    map[string]*registration
	listeners []func(LifecycleEvent, string)
	logger    *zap.Logger
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry(logger *zap.Logger) *InMemoryRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryRegistry{
		agents: make(map[string]*registration),
		logger: logger,
	}
}

// Register adds an agent with its capabilities and optional domain tags.
func (r *InMemoryRegistry) Register(agentID string, worker Worker, capabilities, domains []string) {
	r.mu.Lock()
	reg := &registration{
		worker:       worker,
		capabilities: make(map[string]bool, len(capabilities)),
		domains:      make(map[string]bool, len(domains)),
		registeredAt: time.Now(),
	}
	for _, c := range capabilities {
		reg.capabilities[c] = true
	}
	for _, d := range domains {
		reg.domains[d] = true
	}
	r.agents[agentID] = reg
	listeners := append(([]func(LifecycleEvent, string))(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", agentID),
		zap.Strings("capabilities", capabilities))
	for _, fn := range listeners {
		fn(EventRegistered, agentID)
	}
}

// Unregister removes an agent.
func (r *InMemoryRegistry) Unregister(agentID string) {
	r.mu.Lock()
	_, ok := r.agents[agentID]
	delete(r.agents, agentID)
	listeners := append(([]func(LifecycleEvent, string))(nil), r.listeners...)
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range listeners {
		fn(EventUnregistered, agentID)
	}
}

// MarkOffline flags an agent as unreachable without removing it.
func (r *InMemoryRegistry) MarkOffline(agentID string) {
	r.mu.Lock()
	reg, ok := r.agents[agentID]
	if ok {
		reg.offline = true
	}
	listeners := append(([]func(LifecycleEvent, string))(nil), r.listeners...)
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range listeners {
		fn(EventOffline, agentID)
	}
}

// FindAgentsForTask ranks online agents by capability coverage and domain
// affinity.
func (r *InMemoryRegistry) FindAgentsForTask(ctx context.Context, criteria Criteria) ([]Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []Candidate
	for id, reg := range r.agents {
		if reg.offline {
			continue
		}
		matched := 0
		for _, c := range criteria.Capabilities {
			if reg.capabilities[c] {
				matched++
			}
		}
		if matched < len(criteria.Capabilities) {
			continue
		}

		score := 0.8
		if criteria.Domain != "" && reg.domains[criteria.Domain] {
			score = 1.0
		}
		candidates = append(candidates, Candidate{AgentID: id, Score: score})
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})
	return candidates, nil
}

// AgentInstance returns the delegation handle for an agent id.
func (r *InMemoryRegistry) AgentInstance(agentID string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.agents[agentID]
	if !ok || reg.offline {
		return nil, false
	}
	return reg.worker, true
}

// HasCapability reports whether any online agent provides the capability.
func (r *InMemoryRegistry) HasCapability(capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.agents {
		if !reg.offline && reg.capabilities[capability] {
			return true
		}
	}
	return false
}

// Subscribe registers a lifecycle listener. Listeners are invoked
// synchronously after the registry mutation completes.
func (r *InMemoryRegistry) Subscribe(fn func(event LifecycleEvent, agentID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Ensure InMemoryRegistry implements Registry.
var _ Registry = (*InMemoryRegistry)(nil)
