package monitor

import (
	"sort"
	"sync"
)

// Factory builds the agent for an ID.
type Factory func(agentID string) (*Agent, error)

// Registry holds one isolated Agent per agent ID, created on first use.
type Registry struct {
	factory Factory

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool
}

// NewRegistry creates a registry that builds agents with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, agents: make(map[string]*Agent)}
}

// Get returns the agent for agentID, building it on first use. An empty
// ID selects DefaultAgentID.
func (r *Registry) Get(agentID string) (*Agent, error) {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if a, ok := r.agents[agentID]; ok {
		return a, nil
	}
	a, err := r.factory(agentID)
	if err != nil {
		return nil, err
	}
	r.agents[agentID] = a
	return a, nil
}

// IDs returns the IDs of the agents built so far, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every agent, saving its state. Later Gets fail.
func (r *Registry) Close() {
	r.mu.Lock()
	agents := r.agents
	r.agents = make(map[string]*Agent)
	r.closed = true
	r.mu.Unlock()

	for _, a := range agents {
		a.Close()
	}
}
