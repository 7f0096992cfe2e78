package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/server/worker"
)

// WeatherResponse is returned by the non-streaming weather endpoints.
type WeatherResponse struct {
	Success  bool       `json:"success"`
	Response string     `json:"response"`
	City     string     `json:"city,omitempty"`
	Usage    *llm.Usage `json:"usage,omitempty"`
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// handleWeather answers a JSON weather query in one response.
func (s *Server) handleWeather(c *fiber.Ctx) error {
	var req WeatherRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	query, ok := req.Query()
	if !ok {
		return s.fail(c, fiber.StatusBadRequest, msgMissingQuery)
	}

	res, ok, err := s.generate(c, storage.ModeGenerate, agent.Request{Prompt: query})
	if !ok {
		return err
	}

	return c.JSON(WeatherResponse{
		Success:  true,
		Response: res.Text,
		Usage:    &res.Usage,
	})
}

// handleWeatherByCity answers GET /api/weather?city=.
func (s *Server) handleWeatherByCity(c *fiber.Ctx) error {
	city := strings.TrimSpace(c.Query("city"))
	if city == "" {
		return s.fail(c, fiber.StatusBadRequest, msgMissingCityParam)
	}
	city = strings.Clone(city)

	res, ok, err := s.generate(c, storage.ModeGenerate, agent.Request{Prompt: CityQuery(city)})
	if !ok {
		return err
	}

	return c.JSON(WeatherResponse{
		Success:  true,
		Response: res.Text,
		City:     city,
	})
}

// handleWeatherAction answers a form submission with a single city field.
func (s *Server) handleWeatherAction(c *fiber.Ctx) error {
	city := strings.TrimSpace(c.FormValue("city"))
	if city == "" {
		return s.fail(c, fiber.StatusBadRequest, msgMissingCity)
	}
	city = strings.Clone(city)

	res, ok, err := s.generate(c, storage.ModeForm, agent.Request{Prompt: CityQuery(city)})
	if !ok {
		return err
	}

	return c.JSON(WeatherResponse{
		Success:  true,
		Response: res.Text,
		City:     city,
	})
}

// generate runs a non-streaming request against the selected agent and
// records the turn. When ok is false the error envelope has already been
// written and the handler returns err as is, which is nil unless writing
// the envelope failed.
func (s *Server) generate(c *fiber.Ctx, mode storage.Mode, req agent.Request) (res *agent.Result, ok bool, err error) {
	a, status, err := s.agentFor(c)
	if err != nil {
		return nil, false, s.fail(c, status, err.Error())
	}

	if req.MaxSteps == 0 {
		req.MaxSteps = s.config.MaxSteps
	}

	path := strings.Clone(c.Path())
	turn := storage.StartTurn(a.Name(), mode, req.Prompt, time.Now())

	res, err = a.Generate(c.UserContext(), req)
	if err != nil {
		s.recordFailure(turn, path, err)
		return nil, false, s.failInternal(c, "Failed to get weather", err)
	}

	turn.Finish(res.Text, &res.Usage, 0, nil)
	s.workerPool.Enqueue(worker.Job{Turn: turn, Path: path})

	return res, true, nil
}

// agentFor resolves the agent named by AgentNameHeader, or the configured
// default. On failure it returns the status to answer with.
func (s *Server) agentFor(c *fiber.Ctx) (agent.Agent, int, error) {
	name := s.config.AgentName
	if h := strings.TrimSpace(c.Get(AgentNameHeader)); h != "" {
		name = strings.Clone(h)
	}

	a, err := s.registry.Lookup(name)
	if errors.Is(err, agent.ErrAgentNotFound) {
		return nil, fiber.StatusNotFound, err
	}
	if err != nil {
		return nil, fiber.StatusInternalServerError, err
	}
	return a, 0, nil
}

func (s *Server) recordFailure(turn *storage.Turn, path string, err error) {
	turn.Finish("", nil, 0, err)
	s.workerPool.Enqueue(worker.Job{Turn: turn, Path: path})
}
