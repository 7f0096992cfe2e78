package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/agent/ollama"
	"github.com/papercomputeco/skycast/pkg/weather"
)

type fakeWeather struct {
	err       error
	locations []string
}

func (f *fakeWeather) Lookup(_ context.Context, location string) (*weather.Conditions, error) {
	f.locations = append(f.locations, location)
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Conditions{Location: location, Temperature: 18.5, Conditions: "Partly cloudy"}, nil
}

type capturedRequest struct {
	Model    string            `json:"model"`
	Stream   bool              `json:"stream"`
	Format   json.RawMessage   `json:"format"`
	Messages []json.RawMessage `json:"messages"`
	Tools    []json.RawMessage `json:"tools"`
}

// fakeOllama replies to each /api/chat call with the next scripted NDJSON body.
type fakeOllama struct {
	server *httptest.Server

	mu       sync.Mutex
	replies  []string
	requests []capturedRequest
}

func newFakeOllama(replies ...string) *fakeOllama {
	f := &fakeOllama{replies: replies}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedRequest
		if r.URL.Path != "/api/chat" || json.NewDecoder(r.Body).Decode(&req) != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		idx := len(f.requests) - 1
		f.mu.Unlock()

		if idx >= len(f.replies) {
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, f.replies[idx])
	}))
	return f
}

func (f *fakeOllama) calls() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

const toolCallReply = `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"location":"Paris"}}}]},"done":false}
{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":40,"eval_count":10}
`

const answerReply = `{"message":{"role":"assistant","content":"It's "},"done":false}
{"message":{"role":"assistant","content":"partly cloudy "},"done":false}
{"message":{"role":"assistant","content":"in Paris."},"done":true,"prompt_eval_count":60,"eval_count":7}
`

func drain(s agent.Stream) ([]string, error) {
	var out []string
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

var _ = Describe("Agent", func() {
	var (
		fake   *fakeOllama
		lookup *fakeWeather
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		lookup = &fakeWeather{}
	})

	newAgent := func() *ollama.Agent {
		DeferCleanup(fake.server.Close)
		return ollama.New(ollama.Config{BaseURL: fake.server.URL + "/", Model: "llama3.2", Weather: lookup})
	}

	It("uses the default name", func() {
		Expect(ollama.New(ollama.Config{}).Name()).To(Equal(ollama.Name))
	})

	It("streams content fragments in order and sums usage across steps", func() {
		fake = newFakeOllama(toolCallReply, answerReply)
		a := newAgent()

		s, err := a.Stream(ctx, agent.Request{Prompt: "What's the weather like in Paris?"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		fragments, err := drain(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(fragments).To(Equal([]string{"It's ", "partly cloudy ", "in Paris."}))

		u := s.Usage()
		Expect(u.PromptTokens).To(Equal(100))
		Expect(u.CompletionTokens).To(Equal(17))
		Expect(u.TotalTokens).To(Equal(117))
		Expect(lookup.locations).To(Equal([]string{"Paris"}))
	})

	It("sends the tool result back to the model", func() {
		fake = newFakeOllama(toolCallReply, answerReply)
		a := newAgent()

		_, err := a.Generate(ctx, agent.Request{Prompt: "Weather in Paris?"})
		Expect(err).NotTo(HaveOccurred())

		calls := fake.calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].Stream).To(BeTrue())
		Expect(calls[0].Model).To(Equal("llama3.2"))
		Expect(calls[0].Tools).To(HaveLen(1))
		Expect(calls[0].Messages).To(HaveLen(2))

		Expect(calls[1].Messages).To(HaveLen(4))
		var toolMsg map[string]any
		Expect(json.Unmarshal(calls[1].Messages[3], &toolMsg)).To(Succeed())
		Expect(toolMsg["role"]).To(Equal("tool"))
		Expect(toolMsg["content"]).To(ContainSubstring(`"temperature":18.5`))
	})

	It("relays tool failures to the model instead of failing", func() {
		lookup.err = weather.ErrLocationNotFound
		fake = newFakeOllama(toolCallReply, answerReply)
		a := newAgent()

		res, err := a.Generate(ctx, agent.Request{Prompt: "Weather in Paris?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("It's partly cloudy in Paris."))

		var toolMsg map[string]any
		Expect(json.Unmarshal(fake.calls()[1].Messages[3], &toolMsg)).To(Succeed())
		Expect(toolMsg["content"]).To(ContainSubstring("location not found"))
	})

	It("stops at the step budget", func() {
		fake = newFakeOllama(toolCallReply, toolCallReply, toolCallReply)
		a := newAgent()

		res, err := a.Generate(ctx, agent.Request{Prompt: "Weather in Paris?", MaxSteps: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(BeEmpty())
		Expect(fake.calls()).To(HaveLen(2))
	})

	It("passes a schema as the response format", func() {
		fake = newFakeOllama(`{"message":{"content":"{}"},"done":true}` + "\n")
		a := newAgent()

		schema := json.RawMessage(`{"type":"object"}`)
		_, err := a.Generate(ctx, agent.Request{Prompt: "Weather in Paris?", Schema: schema})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(fake.calls()[0].Format)).To(Equal(`{"type":"object"}`))
	})

	It("requests plain JSON output", func() {
		fake = newFakeOllama(`{"message":{"content":"{}"},"done":true}` + "\n")
		a := newAgent()

		_, err := a.Generate(ctx, agent.Request{Prompt: "Weather?", Format: "json"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(fake.calls()[0].Format)).To(Equal(`"json"`))
	})

	It("fails on the first Next when Ollama rejects the request", func() {
		fake = newFakeOllama()
		a := newAgent()

		s, err := a.Stream(ctx, agent.Request{Prompt: "Weather in Paris?"})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Next()
		Expect(err).To(MatchError(ContainSubstring("ollama status 500")))
	})

	It("fails when the stream ends without a done line", func() {
		fake = newFakeOllama(`{"message":{"content":"It's "},"done":false}` + "\n")
		a := newAgent()

		s, err := a.Stream(ctx, agent.Request{Prompt: "Weather in Paris?"})
		Expect(err).NotTo(HaveOccurred())
		fragments, err := drain(s)
		Expect(fragments).To(Equal([]string{"It's "}))
		Expect(err).To(MatchError(io.ErrUnexpectedEOF))
	})

	It("surfaces in-stream errors", func() {
		fake = newFakeOllama(`{"error":"model 'nope' not found"}` + "\n")
		a := newAgent()

		_, err := a.Generate(ctx, agent.Request{Prompt: "Weather?"})
		Expect(err).To(MatchError(ContainSubstring("model 'nope' not found")))
	})

	It("rejects an empty prompt before calling out", func() {
		fake = newFakeOllama()
		a := newAgent()

		_, err := a.Stream(ctx, agent.Request{Prompt: strings.Repeat(" ", 3)})
		Expect(err).To(MatchError(agent.ErrEmptyPrompt))
		Expect(fake.calls()).To(BeEmpty())
	})

	It("stops pulling after Close", func() {
		fake = newFakeOllama(answerReply)
		a := newAgent()

		s, err := a.Stream(ctx, agent.Request{Prompt: "Weather in Paris?"})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Next()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Close()).To(Succeed())
		_, err = s.Next()
		Expect(err).To(MatchError(context.Canceled))
	})
})
