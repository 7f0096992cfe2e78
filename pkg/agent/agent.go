// Package agent defines the weather agent contract the server relays from,
// and a registry of the agents configured at startup.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/weather"
)

// DefaultMaxSteps bounds how many model calls one request may make while
// resolving tool calls.
const DefaultMaxSteps = 3

// Instructions is the system prompt shared by the weather agents.
const Instructions = `You are a helpful weather assistant that provides accurate weather information.

Your primary function is to help users get weather details for specific locations. When responding:
- Always ask for a location if none is provided
- If the location name isn't in English, please translate it
- If giving a location with multiple parts (e.g. "New York, NY"), use the most relevant part (e.g. "New York")
- Include relevant details like humidity, wind conditions, and precipitation
- Keep responses concise but informative

Use the get_weather tool to fetch current weather data.`

// ErrEmptyPrompt is returned when a request has no prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// Request is a single query to an agent.
type Request struct {
	Prompt string

	// Format is "" for free text or "json" for a JSON object answer.
	Format string

	// Schema, when set, constrains a JSON answer to this JSON schema.
	Schema json.RawMessage

	// MaxSteps overrides DefaultMaxSteps when positive.
	MaxSteps int
}

// Steps returns the effective step budget.
func (r Request) Steps() int {
	if r.MaxSteps > 0 {
		return r.MaxSteps
	}
	return DefaultMaxSteps
}

// Validate checks the request before any upstream work starts.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// Result is a complete, non-streamed answer.
type Result struct {
	Text  string
	Usage llm.Usage
}

// Stream is an ordered, finite, non-restartable sequence of answer fragments.
// Next returns io.EOF when the answer is complete. Usage is only meaningful
// after that. Close cancels any upstream work still in flight and is safe to
// call more than once.
type Stream interface {
	Next() (string, error)
	Usage() *llm.Usage
	Close() error
}

// Agent answers weather queries.
type Agent interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// WeatherLookup is the tool agents call for live conditions.
type WeatherLookup interface {
	Lookup(ctx context.Context, location string) (*weather.Conditions, error)
}

// Collect drains s into a Result and closes it.
func Collect(s Stream) (*Result, error) {
	defer s.Close()

	var text strings.Builder
	for {
		fragment, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("collecting answer: %w", err)
		}
		text.WriteString(fragment)
	}

	result := &Result{Text: text.String()}
	if u := s.Usage(); u != nil {
		result.Usage = *u
	}
	return result, nil
}
