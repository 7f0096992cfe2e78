// Package client is the Go client for a skycast server. Stream consumes the
// event stream endpoint through a stream.Reassembler, so callers see the
// answer build up fragment by fragment.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/stream"
)

// agentHeader selects a registered agent other than the server default.
const agentHeader = "X-Skycast-Agent"

// turnIDHeader carries the recorded turn ID of a streamed answer.
const turnIDHeader = "X-Skycast-Turn-Id"

// Client talks to a skycast server.
type Client struct {
	target string
	agent  string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithResponseHeaderTimeout bounds how long the client waits for the server
// to start answering. Reading a stream that has started is never timed out.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = newHTTPClient(d) }
}

// WithAgent asks the server to answer with the named agent.
func WithAgent(name string) Option {
	return func(c *Client) { c.agent = name }
}

// WithLogger sets the logger used for request and stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client for the server at target, a full URL such as
// http://localhost:8080.
func New(target string, opts ...Option) *Client {
	c := &Client{
		target: strings.TrimRight(target, "/"),
		http:   newHTTPClient(DefaultResponseHeaderTimeout),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultResponseHeaderTimeout covers the whole agent run for the
// non-streaming endpoints, which answer only once the agent is done.
const DefaultResponseHeaderTimeout = 5 * time.Minute

// newHTTPClient leaves http.Client.Timeout unset since it would also cut off
// long streamed bodies.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: t}
}

// APIError is returned when the server answers with an error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Query is a weather question. Message wins over City when both are set.
type Query struct {
	Message string `json:"message,omitempty"`
	City    string `json:"city,omitempty"`
}

// Answer is a complete, non-streamed answer.
type Answer struct {
	Response string     `json:"response"`
	City     string     `json:"city,omitempty"`
	Usage    *llm.Usage `json:"usage,omitempty"`
}

// WeatherReport is the structured weather answer.
type WeatherReport struct {
	Location        string   `json:"location"`
	Temperature     float64  `json:"temperature"`
	Conditions      string   `json:"conditions"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// StreamResult is the outcome of a streamed answer.
type StreamResult struct {
	// Text is everything reassembled, which is partial when State is
	// StateFailed.
	Text string

	Usage   *llm.Usage
	State   stream.State
	Chunks  int
	Dropped int

	// TurnID identifies the recorded turn on the server.
	TurnID string
}

// Ask posts q to /api/weather and returns the whole answer.
func (c *Client) Ask(ctx context.Context, q Query) (*Answer, error) {
	var out Answer
	if err := c.doJSON(ctx, http.MethodPost, "/api/weather", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AskCity asks about city with GET /api/weather.
func (c *Client) AskCity(ctx context.Context, city string) (*Answer, error) {
	var out Answer
	path := "/api/weather?" + url.Values{"city": {city}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts city as a form to /actions/weather.
func (c *Client) Submit(ctx context.Context, city string) (*Answer, error) {
	form := url.Values{"city": {city}}.Encode()
	req, err := c.newRequest(ctx, http.MethodPost, "/actions/weather", strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out Answer
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Structured asks for a WeatherReport for city.
func (c *Client) Structured(ctx context.Context, city string) (*WeatherReport, error) {
	var out struct {
		Data WeatherReport `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/weather-structured", map[string]string{"city": city}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Turns lists recorded turns, newest first. Empty agentName lists every
// agent and a zero limit uses the server default.
func (c *Client) Turns(ctx context.Context, agentName string, limit int) ([]*storage.Turn, error) {
	q := url.Values{}
	if agentName != "" {
		q.Set("agent", agentName)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/turns"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Turns []*storage.Turn `json:"turns"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

// Turn fetches one recorded turn.
func (c *Client) Turn(ctx context.Context, id string) (*storage.Turn, error) {
	var out struct {
		Turn *storage.Turn `json:"turn"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/turns/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Turn, nil
}

// Stream posts q to /api/weather-stream and reassembles the answer,
// calling observer for every fragment as it arrives. observer may be nil.
//
// The result is returned even on failure so that callers can show the
// partial text. Cancelling ctx stops the read.
func (c *Client) Stream(ctx context.Context, q Query, observer stream.Observer) (*StreamResult, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/weather-stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("starting stream",
		"target", c.target,
		"agent", c.agent,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	opts := []stream.ReassemblerOption{stream.WithLogger(c.logger)}
	if observer != nil {
		opts = append(opts, stream.WithObserver(observer))
	}
	r := stream.NewReassembler(opts...)

	runErr := r.Run(ctx, resp.Body)

	result := &StreamResult{
		Text:    r.Text(),
		Usage:   r.Usage(),
		State:   r.State(),
		Chunks:  r.Chunks(),
		Dropped: r.Dropped(),
		TurnID:  resp.Header.Get(turnIDHeader),
	}

	c.logger.Debug("stream finished",
		"state", result.State.String(),
		"chunks", result.Chunks,
		"dropped", result.Dropped,
		"turn_id", result.TurnID,
	)

	return result, runErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.target+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.agent != "" {
		req.Header.Set(agentHeader, c.agent)
	}
	return req, nil
}

// doJSON sends in as a JSON body, when non-nil, and decodes the reply into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.logger.Debug("sending request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns a non-200 response into an *APIError, falling back to
// the raw body when it is not an error envelope.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
