package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/storage"
)

// WeatherReport is the structured answer returned by
// POST /api/weather-structured.
type WeatherReport struct {
	Location        string   `json:"location" validate:"required" jsonschema:"description=The location for the weather report"`
	Temperature     float64  `json:"temperature" jsonschema:"description=Current temperature in Celsius"`
	Conditions      string   `json:"conditions" validate:"required" jsonschema:"description=Current weather conditions"`
	Summary         string   `json:"summary" validate:"required" jsonschema:"description=A brief summary of the weather"`
	Recommendations []string `json:"recommendations" validate:"required,min=1,dive,required" jsonschema:"description=Activity recommendations based on the weather"`
}

// StructuredResponse wraps a WeatherReport.
type StructuredResponse struct {
	Success bool          `json:"success"`
	Data    WeatherReport `json:"data"`
}

var (
	reportSchemaOnce sync.Once
	reportSchema     json.RawMessage
	reportSchemaErr  error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// WeatherReportSchema returns the JSON schema sent to the agent as the output
// format for structured requests.
func WeatherReportSchema() (json.RawMessage, error) {
	reportSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			DoNotReference:            true,
			AllowAdditionalProperties: false,
		}
		schema := r.Reflect(&WeatherReport{})
		schema.Version = ""
		schema.ID = ""
		reportSchema, reportSchemaErr = json.Marshal(schema)
	})
	return reportSchema, reportSchemaErr
}

// ParseWeatherReport decodes and validates an agent's structured answer.
func ParseWeatherReport(text string) (*WeatherReport, error) {
	var report WeatherReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, fmt.Errorf("decoding weather report: %w", err)
	}
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("validating weather report: %w", err)
	}
	return &report, nil
}

type structuredRequest struct {
	City string `json:"city"`
}

// handleWeatherStructured asks the agent for a report that matches the
// WeatherReport schema.
func (s *Server) handleWeatherStructured(c *fiber.Ctx) error {
	var req structuredRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	city := strings.TrimSpace(req.City)
	if city == "" {
		return s.fail(c, fiber.StatusBadRequest, msgMissingCity)
	}

	schema, err := WeatherReportSchema()
	if err != nil {
		return s.failInternal(c, "Failed to build report schema", err)
	}

	res, ok, err := s.generate(c, storage.ModeStructured, agent.Request{
		Prompt: fmt.Sprintf("Get the weather for %s and provide activity recommendations.", city),
		Format: "json",
		Schema: schema,
	})
	if !ok {
		return err
	}

	report, err := ParseWeatherReport(res.Text)
	if err != nil {
		return s.failInternal(c, "Agent returned an invalid weather report", err)
	}

	return c.JSON(StructuredResponse{Success: true, Data: *report})
}
