// Package server provides the skycast HTTP service: weather endpoints backed by
// a registry of agents, with answers relayed to the client as an event stream
// and every served turn recorded asynchronously.
package server

import (
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/server/mcp"
	"github.com/papercomputeco/skycast/server/worker"
)

// Server is the skycast HTTP server.
type Server struct {
	config     Config
	registry   *agent.Registry
	workerPool *worker.Pool
	mcp        *mcp.Server
	logger     *slog.Logger
	server     *fiber.App
}

// New creates a new Server. The registry and storage driver are required and
// are shared with the caller, which remains responsible for closing the driver
// and the publisher after Close returns.
func New(config Config, log *slog.Logger) (*Server, error) {
	if config.Registry == nil {
		return nil, errors.New("agent registry is required")
	}
	if config.Driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	defaultAgent, err := config.Registry.Lookup(config.AgentName)
	if err != nil {
		return nil, err
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:     config.Driver,
		Publisher:  config.Publisher,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Agent:    defaultAgent,
		MaxSteps: config.MaxSteps,
		Recorder: wp,
		Logger:   log,
	})
	if err != nil {
		wp.Close()
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:     config,
		registry:   config.Registry,
		workerPool: wp,
		mcp:        mcpServer,
		logger:     log,
		server:     app,
	}

	app.Use(recover.New())

	app.Get("/ping", s.handlePing)

	api := app.Group("/api")
	api.Post("/weather-stream", s.handleWeatherStream)
	api.Post("/weather", s.handleWeather)
	api.Get("/weather", s.handleWeatherByCity)
	api.Post("/weather-structured", s.handleWeatherStructured)
	api.Get("/turns", s.handleListTurns)
	api.Get("/turns/:id", s.handleGetTurn)

	app.Post("/actions/weather", s.handleWeatherAction)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting skycast server",
		"listen", s.config.ListenAddr,
		"agent", s.config.AgentName,
		"agents", s.registry.Names(),
	)
	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting skycast server",
		"listen", listener.Addr().String(),
		"agent", s.config.AgentName,
		"agents", s.registry.Names(),
	)
	return s.server.Listener(listener)
}

// Close gracefully shuts down the server and waits for all queued turns to be
// recorded.
func (s *Server) Close() error {
	err := s.server.Shutdown()
	s.workerPool.Close()
	return err
}

// App returns the underlying Fiber app, for in-process tests.
func (s *Server) App() *fiber.App {
	return s.server
}
