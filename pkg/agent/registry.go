package agent

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrAgentNotFound is returned by Lookup for an unknown name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrDuplicateAgent is returned by Register when the name is taken.
	ErrDuplicateAgent = errors.New("agent already registered")
)

// Registry holds the agents available to the server, keyed by name. It is
// built once at startup and handed to the server.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry returns a registry holding agents. Later agents replace earlier
// ones with the same name.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Register adds a.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// Lookup returns the agent registered under name.
func (r *Registry) Lookup(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
