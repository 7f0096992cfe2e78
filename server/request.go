package server

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/skycast/pkg/logger"
)

// AgentNameHeader is the optional header used to pick an agent per request.
const AgentNameHeader = "X-Skycast-Agent"

// Messages returned for input errors.
const (
	msgMissingQuery     = "Message or city is required"
	msgMissingCity      = "City is required"
	msgMissingCityParam = "City parameter is required"
	msgInvalidBody      = "Invalid request body"
)

// WeatherRequest is the JSON body accepted by the weather endpoints.
type WeatherRequest struct {
	Message string `json:"message,omitempty"`
	City    string `json:"city,omitempty"`
}

// Query returns the prompt for the agent: the message when present, otherwise
// a question about the city. It reports false when both are empty.
func (r WeatherRequest) Query() (string, bool) {
	if msg := strings.TrimSpace(r.Message); msg != "" {
		return msg, true
	}
	if city := strings.TrimSpace(r.City); city != "" {
		return CityQuery(city), true
	}
	return "", false
}

// CityQuery is the prompt used when only a city is given.
func CityQuery(city string) string {
	return fmt.Sprintf("What's the weather like in %s?", city)
}

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// fail writes the error envelope with status.
func (s *Server) fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: msg})
}

// failInternal logs err and writes a 500 envelope.
func (s *Server) failInternal(c *fiber.Ctx, msg string, err error) error {
	s.logger.Error(msg,
		"path", c.Path(),
		logger.Err(err),
	)
	return s.fail(c, fiber.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}
