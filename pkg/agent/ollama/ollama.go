// Package ollama implements a weather agent on top of Ollama's chat API,
// running the get_weather tool between model steps.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/logger"
)

const (
	// DefaultBaseURL is the local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"

	// Name is the registry name of the Ollama agent.
	Name = "weatherAgent"
)

// Config is the configuration of an Ollama Agent.
type Config struct {
	// Name overrides the registry name.
	Name string

	// BaseURL is the Ollama API URL (e.g., "http://localhost:11434").
	BaseURL string

	// Model is the chat model to use.
	Model string

	// Weather backs the get_weather tool. Without it tool calls are answered
	// with an error the model can relay.
	Weather agent.WeatherLookup

	// HTTPClient overrides the default client. Streams are long lived so the
	// default client has no overall timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Agent is an agent.Agent backed by Ollama.
type Agent struct {
	name       string
	baseURL    string
	model      string
	weather    agent.WeatherLookup
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns an Agent for c, filling defaults for empty fields.
func New(c Config) *Agent {
	a := &Agent{
		name:       c.Name,
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		model:      c.Model,
		weather:    c.Weather,
		httpClient: c.HTTPClient,
		logger:     c.Logger,
	}
	if a.name == "" {
		a.name = Name
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{}
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}
	return a
}

func (a *Agent) Name() string {
	return a.name
}

// Generate runs req to completion and returns the full answer.
func (a *Agent) Generate(ctx context.Context, req agent.Request) (*agent.Result, error) {
	s, err := a.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.Collect(s)
}

// Stream starts req and returns its answer as fragments. The first model call
// is issued lazily by the first Next.
func (a *Agent) Stream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var format json.RawMessage
	switch {
	case len(req.Schema) > 0:
		format = req.Schema
	case req.Format == "json":
		format = json.RawMessage(`"json"`)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &chatStream{
		agent:  a,
		ctx:    ctx,
		cancel: cancel,
		format: format,
		steps:  req.Steps(),
		messages: []chatMessage{
			{Role: roleSystem, Content: agent.Instructions},
			{Role: roleUser, Content: req.Prompt},
		},
	}, nil
}

// chatStream pulls NDJSON lines from the current model step. When a step ends
// with tool calls it runs them and opens the next step, up to the step budget.
type chatStream struct {
	agent  *Agent
	ctx    context.Context
	cancel context.CancelFunc
	format json.RawMessage
	steps  int

	messages []chatMessage
	step     int
	body     io.ReadCloser
	dec      *json.Decoder
	reply    chatMessage

	usage llm.Usage
	done  bool
}

func (s *chatStream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return "", err
		}

		if s.body == nil {
			if err := s.open(); err != nil {
				return "", err
			}
		}

		var chunk chatResponse
		if err := s.dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("decode ollama stream: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama error: %s", chunk.Error)
		}

		s.reply.Content += chunk.Message.Content
		s.reply.ToolCalls = append(s.reply.ToolCalls, chunk.Message.ToolCalls...)

		if chunk.Done {
			s.usage.Add(llm.Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount})
			s.finishStep()
		}

		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

// finishStep closes the current response and either schedules a tool step or
// marks the stream complete.
func (s *chatStream) finishStep() {
	_ = s.body.Close()
	s.body = nil
	s.dec = nil

	reply := s.reply
	s.reply = chatMessage{}

	if len(reply.ToolCalls) == 0 || s.step >= s.steps {
		if len(reply.ToolCalls) > 0 {
			s.agent.logger.Warn("step budget exhausted with pending tool calls", "steps", s.steps)
		}
		s.done = true
		return
	}

	reply.Role = roleAssistant
	s.messages = append(s.messages, reply)
	for _, call := range reply.ToolCalls {
		s.messages = append(s.messages, chatMessage{
			Role:     roleTool,
			ToolName: call.Function.Name,
			Content:  s.agent.runTool(s.ctx, call),
		})
	}
}

func (s *chatStream) open() error {
	s.step++

	payload, err := json.Marshal(chatRequest{
		Model:    s.agent.model,
		Messages: s.messages,
		Stream:   true,
		Format:   s.format,
		Tools:    []tool{weatherTool},
	})
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.agent.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.agent.logger.Debug("ollama step", "step", s.step, "model", s.agent.model, "messages", len(s.messages))

	resp, err := s.agent.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send ollama request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.body = resp.Body
	s.dec = json.NewDecoder(resp.Body)
	return nil
}

func (s *chatStream) Usage() *llm.Usage {
	u := s.usage
	return &u
}

func (s *chatStream) Close() error {
	s.cancel()
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		return err
	}
	return nil
}

// runTool executes a tool call and returns its JSON result as the tool
// message content.
func (a *Agent) runTool(ctx context.Context, call toolCall) string {
	if call.Function.Name != weatherToolName {
		return toolError(fmt.Errorf("unknown tool %q", call.Function.Name))
	}
	if a.weather == nil {
		return toolError(errors.New("weather lookup is not configured"))
	}

	location, _ := call.Function.Arguments["location"].(string)
	conditions, err := a.weather.Lookup(ctx, location)
	if err != nil {
		a.logger.Warn("weather tool failed", "location", location, logger.Err(err))
		return toolError(err)
	}

	out, err := json.Marshal(conditions)
	if err != nil {
		return toolError(err)
	}
	return string(out)
}

func toolError(err error) string {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(out)
}
