// Package mcp provides an MCP (Model Context Protocol) server that exposes the
// weather agent as a tool.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/utils"
	"github.com/papercomputeco/skycast/server/worker"
)

// Recorder accepts served turns for asynchronous recording.
type Recorder interface {
	Enqueue(job worker.Job) bool
}

type Config struct {
	// Agent answers get_weather_info calls.
	Agent agent.Agent

	// MaxSteps bounds the agent's tool steps. Zero uses the agent default.
	MaxSteps int

	// Recorder receives a turn for each tool call. Optional.
	Recorder Recorder

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the weather tool.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "skycast",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Agent == nil {
			return nil, errors.New("agent is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        weatherToolName,
			Description: weatherDescription,
		}, s.handleWeather)
	}

	s.mcpServer = mcpServer

	// Stateless: every request is served by the same server and no session
	// is kept between calls.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
