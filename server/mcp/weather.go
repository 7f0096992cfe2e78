package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/server/worker"
)

var (
	weatherToolName    = "get_weather_info"
	weatherDescription = "Get current weather information for a city. Returns the weather agent's answer."
)

// WeatherInput represents the input arguments for the weather tool.
type WeatherInput struct {
	City string `json:"city" jsonschema:"the city to get weather information for"`
}

// WeatherOutput represents the output of the weather tool.
type WeatherOutput struct {
	City     string `json:"city"`
	Response string `json:"response"`
}

// handleWeather asks the configured agent about input.City.
func (s *Server) handleWeather(ctx context.Context, _ *mcp.CallToolRequest, input WeatherInput) (*mcp.CallToolResult, WeatherOutput, error) {
	log := s.config.Logger

	city := strings.TrimSpace(input.City)
	if city == "" {
		return toolError("city is required"), WeatherOutput{}, nil
	}

	query := fmt.Sprintf("What's the weather like in %s?", city)
	log.Debug("MCP weather request", "city", city)

	turn := storage.StartTurn(s.config.Agent.Name(), storage.ModeMCP, query, time.Now())
	res, err := s.config.Agent.Generate(ctx, agent.Request{Prompt: query, MaxSteps: s.config.MaxSteps})
	if err != nil {
		log.Error("MCP weather agent failed", "city", city, logger.Err(err))
		turn.Finish("", nil, 0, err)
		s.record(turn)
		return toolError(fmt.Sprintf("Failed to get weather: %v", err)), WeatherOutput{}, nil
	}

	turn.Finish(res.Text, &res.Usage, 0, nil)
	s.record(turn)

	output := WeatherOutput{
		City:     city,
		Response: res.Text,
	}

	// Structured output is mirrored as JSON text for clients that only read
	// content blocks.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize result: %v", err)), WeatherOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func (s *Server) record(turn *storage.Turn) {
	if s.config.Recorder == nil {
		return
	}
	s.config.Recorder.Enqueue(worker.Job{Turn: turn, Path: "/mcp"})
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
