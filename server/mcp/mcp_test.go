package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/agent/scripted"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/server/mcp"
	"github.com/papercomputeco/skycast/server/worker"
)

type recorder struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (r *recorder) Enqueue(job worker.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return true
}

func (r *recorder) Jobs() []worker.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]worker.Job(nil), r.jobs...)
}

// connect wires an in-process client to server.
func connect(ctx context.Context, server *mcp.Server) *sdk.ClientSession {
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	_, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	Expect(err).NotTo(HaveOccurred())

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(session.Close)

	return session
}

func textOf(res *sdk.CallToolResult) string {
	Expect(res.Content).To(HaveLen(1))
	text, ok := res.Content[0].(*sdk.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("MCP Server", func() {
	var (
		ctx context.Context
		rec *recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recorder{}
	})

	Describe("NewServer", func() {
		It("returns an error when agent is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("agent is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Agent: scripted.New()})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("get_weather_info", func() {
		It("lists the tool", func() {
			server, err := mcp.NewServer(mcp.Config{
				Agent:  scripted.New(scripted.WithFragments("Sunny.")),
				Logger: logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			session := connect(ctx, server)
			tools, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(tools.Tools).To(HaveLen(1))
			Expect(tools.Tools[0].Name).To(Equal("get_weather_info"))
		})

		It("returns the agent's answer for the city and records the turn", func() {
			server, err := mcp.NewServer(mcp.Config{
				Agent:    scripted.New(scripted.WithFragments("It's ", "sunny ", "in Paris.")),
				Recorder: rec,
				Logger:   logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			session := connect(ctx, server)
			res, err := session.CallTool(ctx, &sdk.CallToolParams{
				Name:      "get_weather_info",
				Arguments: map[string]any{"city": "Paris"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())

			var out mcp.WeatherOutput
			Expect(json.Unmarshal([]byte(textOf(res)), &out)).To(Succeed())
			Expect(out).To(Equal(mcp.WeatherOutput{City: "Paris", Response: "It's sunny in Paris."}))

			jobs := rec.Jobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Path).To(Equal("/mcp"))
			Expect(jobs[0].Turn.Mode).To(Equal(storage.ModeMCP))
			Expect(jobs[0].Turn.Query).To(Equal("What's the weather like in Paris?"))
			Expect(jobs[0].Turn.Status).To(Equal(storage.StatusComplete))
		})

		It("reports a blank city as a tool error", func() {
			server, err := mcp.NewServer(mcp.Config{
				Agent:    scripted.New(scripted.WithFragments("unused")),
				Recorder: rec,
				Logger:   logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			session := connect(ctx, server)
			res, err := session.CallTool(ctx, &sdk.CallToolParams{
				Name:      "get_weather_info",
				Arguments: map[string]any{"city": "  "},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(Equal("city is required"))
			Expect(rec.Jobs()).To(BeEmpty())
		})

		It("reports agent failures as a tool error and records a failed turn", func() {
			server, err := mcp.NewServer(mcp.Config{
				Agent:    scripted.New(scripted.WithFragments("a", "b"), scripted.WithFailure(1, errors.New("model offline"))),
				Recorder: rec,
				Logger:   logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			session := connect(ctx, server)
			res, err := session.CallTool(ctx, &sdk.CallToolParams{
				Name:      "get_weather_info",
				Arguments: map[string]any{"city": "Oslo"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("model offline"))

			jobs := rec.Jobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Turn.Status).To(Equal(storage.StatusFailed))
		})
	})
})
