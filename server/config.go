package server

import (
	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/eventstream"
	"github.com/papercomputeco/skycast/pkg/storage"
)

// Config is the server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// AgentName is the registry name of the agent that answers requests that
	// do not carry the AgentNameHeader.
	AgentName string

	// MaxSteps bounds the tool steps an agent may take per request.
	// Zero uses agent.DefaultMaxSteps.
	MaxSteps int

	// Registry resolves agents by name.
	Registry *agent.Registry

	// Driver records every served turn.
	Driver storage.Driver

	// Publisher announces recorded turns. Optional.
	Publisher eventstream.Publisher

	// NumWorkers and QueueSize size the turn recording pool. Zero values use
	// the pool defaults.
	NumWorkers uint
	QueueSize  uint
}
