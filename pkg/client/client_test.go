package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/client"
	"github.com/papercomputeco/skycast/pkg/stream"
	"github.com/papercomputeco/skycast/server/servertest"
)

// startServer runs a skycast server with the servertest agents and returns
// its URL.
func startServer() string {
	s, err := servertest.Start(servertest.Registry())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(s.Close)
	return s.URL
}

var _ = Describe("Client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("against a skycast server", func() {
		var target string

		BeforeEach(func() {
			target = startServer()
		})

		It("streams an answer and reports each fragment in order", func() {
			var seen []string
			res, err := client.New(target).Stream(ctx, client.Query{City: "Paris"}, func(fragment, _ string) {
				seen = append(seen, fragment)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{"It's ", "sunny ", "in Paris."}))
			Expect(res.Text).To(Equal("It's sunny in Paris."))
			Expect(res.State).To(Equal(stream.StateComplete))
			Expect(res.Chunks).To(Equal(3))
			Expect(res.Dropped).To(BeZero())
			Expect(res.Usage).NotTo(BeNil())
			Expect(res.TurnID).NotTo(BeEmpty())
		})

		It("returns the partial answer when the stream fails", func() {
			res, err := client.New(target, client.WithAgent("flaky")).Stream(ctx, client.Query{City: "Paris"}, nil)

			Expect(err).To(HaveOccurred())
			Expect(res.State).To(Equal(stream.StateFailed))
			Expect(res.Text).To(Equal("It's "))
			Expect(res.Usage).To(BeNil())
		})

		It("returns an APIError for an empty query", func() {
			_, err := client.New(target).Stream(ctx, client.Query{}, nil)

			var apiErr *client.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(apiErr.Message).To(Equal("Message or city is required"))
		})

		It("asks, asks by city and submits forms", func() {
			c := client.New(target)

			answer, err := c.Ask(ctx, client.Query{Message: "Weather in Paris?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Response).To(Equal("It's sunny in Paris."))
			Expect(answer.Usage).NotTo(BeNil())

			answer, err = c.AskCity(ctx, "Paris")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer.City).To(Equal("Paris"))

			answer, err = c.Submit(ctx, "Paris")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer.City).To(Equal("Paris"))
		})

		It("fetches a structured report", func() {
			report, err := client.New(target, client.WithAgent("reporter")).Structured(ctx, "Oslo")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Location).To(Equal("Oslo"))
			Expect(report.Temperature).To(BeNumerically("==", 21.5))
			Expect(report.Conditions).To(Equal("Clear sky"))
		})

		It("lists and fetches recorded turns", func() {
			c := client.New(target)
			_, err := c.Ask(ctx, client.Query{City: "Paris"})
			Expect(err).NotTo(HaveOccurred())

			var turnID string
			Eventually(func() (int, error) {
				turns, err := c.Turns(ctx, "weatherAgent", 10)
				if len(turns) > 0 {
					turnID = turns[0].ID
				}
				return len(turns), err
			}).Should(Equal(1))

			turn, err := c.Turn(ctx, turnID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Response).To(Equal("It's sunny in Paris."))

			_, err = c.Turn(ctx, "missing")
			var apiErr *client.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("against a hand-written stream", func() {
		serve := func(body string) string {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, body)
			}))
			DeferCleanup(srv.Close)
			return srv.URL
		}

		It("drops malformed records without failing", func() {
			target := serve(`data: {"chunk":"a"}` + "\n\n" +
				"data: {not json\n\n" +
				`data: {"chunk":"b"}` + "\n\n" +
				`data: {"done":true,"usage":{"promptTokens":1,"completionTokens":2,"totalTokens":3}}` + "\n\n")

			res, err := client.New(target).Stream(ctx, client.Query{City: "x"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Text).To(Equal("ab"))
			Expect(res.Dropped).To(Equal(1))
			Expect(res.Usage.TotalTokens).To(Equal(3))
		})

		It("fails a stream that ends without a terminal frame", func() {
			target := serve(`data: {"chunk":"a"}` + "\n\n")

			res, err := client.New(target).Stream(ctx, client.Query{City: "x"}, nil)
			Expect(err).To(MatchError(stream.ErrStreamTruncated))
			Expect(res.State).To(Equal(stream.StateFailed))
			Expect(res.Text).To(Equal("a"))
		})

		It("surfaces an error frame", func() {
			target := serve(`data: {"chunk":"a"}` + "\n\n" + `data: {"error":"quota exceeded"}` + "\n\n")

			_, err := client.New(target).Stream(ctx, client.Query{City: "x"}, nil)
			var frameErr stream.ErrorFrameError
			Expect(errors.As(err, &frameErr)).To(BeTrue())
			Expect(frameErr.Message).To(Equal("quota exceeded"))
		})

		It("uses the raw body when the error is not an envelope", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			}))
			DeferCleanup(srv.Close)

			_, err := client.New(srv.URL).Ask(ctx, client.Query{City: "x"})
			Expect(err).To(MatchError("server returned status 502: bad gateway"))
		})

		It("keeps reading a stream that outlasts the header timeout", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, chunk := range []string{"a", "b", "c"} {
					fmt.Fprintf(w, `data: {"chunk":%q}`+"\n\n", chunk)
					w.(http.Flusher).Flush()
					time.Sleep(60 * time.Millisecond)
				}
				fmt.Fprint(w, `data: {"done":true}`+"\n\n")
			}))
			DeferCleanup(srv.Close)

			cl := client.New(srv.URL, client.WithResponseHeaderTimeout(50*time.Millisecond))
			res, err := cl.Stream(ctx, client.Query{City: "x"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Text).To(Equal("abc"))
			Expect(res.State).To(Equal(stream.StateComplete))
		})

		It("gives up on a server that never starts answering", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			DeferCleanup(srv.Close)
			DeferCleanup(func() { close(release) })

			cl := client.New(srv.URL, client.WithResponseHeaderTimeout(50*time.Millisecond))
			_, err := cl.Ask(ctx, client.Query{City: "x"})
			Expect(err).To(MatchError(ContainSubstring("timeout awaiting response headers")))
		})

		It("stops reading when the context is cancelled", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, `data: {"chunk":"a"}`+"\n\n")
				w.(http.Flusher).Flush()
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			DeferCleanup(srv.Close)
			DeferCleanup(func() { close(release) })

			cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()

			res, err := client.New(srv.URL).Stream(cctx, client.Query{City: "x"}, nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(res.Text).To(Equal("a"))
		})
	})
})
