// Package scripted provides a deterministic weather agent that needs no model.
// It answers from the weather tool when it can find a city in the prompt, and
// can replay fixed fragments or inject failures for tests and demos.
package scripted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/weather"
)

// Name is the registry name of the scripted agent.
const Name = "scripted"

// Agent is a deterministic agent.Agent.
type Agent struct {
	name      string
	weather   agent.WeatherLookup
	fragments []string
	replay    bool
	failAfter int
	failErr   error
	delay     time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithName overrides the registry name.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithWeather sets the lookup used to answer city queries.
func WithWeather(w agent.WeatherLookup) Option {
	return func(a *Agent) { a.weather = w }
}

// WithFragments makes every answer replay fragments verbatim.
func WithFragments(fragments ...string) Option {
	return func(a *Agent) {
		a.fragments = fragments
		a.replay = true
	}
}

// ErrScriptedFailure is the failure used when WithFailure is given a nil
// error.
var ErrScriptedFailure = errors.New("scripted failure")

// WithFailure makes streams fail with err after n fragments. A nil err fails
// with ErrScriptedFailure.
func WithFailure(n int, err error) Option {
	if err == nil {
		err = ErrScriptedFailure
	}
	return func(a *Agent) {
		a.failAfter = n
		a.failErr = err
	}
}

// WithDelay pauses before each fragment, to make streaming visible.
func WithDelay(d time.Duration) Option {
	return func(a *Agent) { a.delay = d }
}

// New returns a scripted Agent.
func New(opts ...Option) *Agent {
	a := &Agent{name: Name, failAfter: -1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Generate(ctx context.Context, req agent.Request) (*agent.Result, error) {
	s, err := a.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.Collect(s)
}

func (a *Agent) Stream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fragments := a.fragments
	if !a.replay {
		answer, err := a.answer(ctx, req)
		if err != nil {
			return nil, err
		}
		fragments = Split(answer)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &fragmentStream{
		ctx:       ctx,
		cancel:    cancel,
		fragments: fragments,
		failAfter: a.failAfter,
		failErr:   a.failErr,
		delay:     a.delay,
		usage: llm.Usage{
			PromptTokens:     len(strings.Fields(req.Prompt)),
			CompletionTokens: len(fragments),
			TotalTokens:      len(strings.Fields(req.Prompt)) + len(fragments),
		},
	}, nil
}

// cityPattern finds the place in prompts such as "What's the weather like in
// Paris?" or "Get the weather for New York and ...".
var cityPattern = regexp.MustCompile(`(?i)\b(?:in|for|at)\s+([\p{L}][\p{L}\s.'-]*?)(?:\s+and\b|\s+today\b|\s+right now\b|[?.!,]|$)`)

// ExtractCity returns the place named in prompt, or "".
func ExtractCity(prompt string) string {
	m := cityPattern.FindStringSubmatch(strings.TrimSpace(prompt))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func (a *Agent) answer(ctx context.Context, req agent.Request) (string, error) {
	city := ExtractCity(req.Prompt)
	structured := req.Format == "json" || len(req.Schema) > 0

	if city == "" || a.weather == nil {
		if structured {
			return "", errors.New("no location to report on")
		}
		return "I can help with the weather. Ask me about a city, for example: What's the weather like in Paris?", nil
	}

	c, err := a.weather.Lookup(ctx, city)
	if errors.Is(err, weather.ErrLocationNotFound) && !structured {
		return fmt.Sprintf("I couldn't find a place called %s. Could you check the spelling?", city), nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up weather for %s: %w", city, err)
	}

	if structured {
		return report(c)
	}

	return fmt.Sprintf("It's %s in %s at %.1f°C, feeling like %.1f°C. Humidity is %d%% with wind at %.1f km/h (gusts up to %.1f km/h).",
		strings.ToLower(c.Conditions), c.Location, c.Temperature, c.FeelsLike, c.Humidity, c.WindSpeed, c.WindGust), nil
}

// report renders c as the structured weather report object.
func report(c *weather.Conditions) (string, error) {
	out, err := json.Marshal(map[string]any{
		"location":        c.Location,
		"temperature":     c.Temperature,
		"conditions":      c.Conditions,
		"summary":         c.Summary(),
		"recommendations": recommendations(c),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func recommendations(c *weather.Conditions) []string {
	switch {
	case c.Code >= 95:
		return []string{"Stay indoors", "Visit a museum"}
	case c.Code >= 71 && c.Code <= 77, c.Code == 85, c.Code == 86:
		return []string{"Build a snowman", "Go sledding"}
	case c.Code >= 51:
		return []string{"Bring an umbrella", "Visit a cafe"}
	case c.Temperature >= 25:
		return []string{"Go swimming", "Have a picnic in the shade"}
	case c.Temperature <= 5:
		return []string{"Dress in layers", "Enjoy a hot drink"}
	default:
		return []string{"Take a walk", "Eat lunch outside"}
	}
}

// Split breaks text into word fragments, each keeping its trailing space, so
// that concatenating the fragments yields text exactly.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.SplitAfter(text, " ")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

type fragmentStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	fragments []string
	pos       int
	failAfter int
	failErr   error
	delay     time.Duration
	usage     llm.Usage
}

func (s *fragmentStream) Next() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.failAfter >= 0 && s.pos == s.failAfter {
		return "", s.failErr
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}

	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *fragmentStream) Usage() *llm.Usage {
	u := s.usage
	return &u
}

func (s *fragmentStream) Close() error {
	s.cancel()
	return nil
}
