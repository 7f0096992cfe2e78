// Package storagetest holds the behavior every storage.Driver must satisfy,
// shared by the driver test suites.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/storage"
)

// NewTurn returns a completed turn created at the given offset from a fixed
// base time.
func NewTurn(id, agentName string, offset time.Duration) *storage.Turn {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &storage.Turn{
		ID:         id,
		Agent:      agentName,
		Mode:       storage.ModeStream,
		Query:      "What's the weather like in Paris?",
		Response:   "It's sunny in Paris.",
		Usage:      llm.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17},
		Status:     storage.StatusComplete,
		Chunks:     3,
		CreatedAt:  base.Add(offset),
		DurationMs: 250,
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec and the driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		DeferCleanup(func() {
			Expect(driver.Close()).To(Succeed())
		})
	})

	Describe("Put and Get", func() {
		It("round-trips every field", func() {
			turn := NewTurn("turn-1", "weatherAgent", 0)
			Expect(driver.Put(ctx, turn)).To(Succeed())

			got, err := driver.Get(ctx, "turn-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Agent).To(Equal("weatherAgent"))
			Expect(got.Mode).To(Equal(storage.ModeStream))
			Expect(got.Query).To(Equal(turn.Query))
			Expect(got.Response).To(Equal(turn.Response))
			Expect(got.Usage).To(Equal(turn.Usage))
			Expect(got.Status).To(Equal(storage.StatusComplete))
			Expect(got.Chunks).To(Equal(3))
			Expect(got.CreatedAt.Equal(turn.CreatedAt)).To(BeTrue())
			Expect(got.DurationMs).To(BeEquivalentTo(250))
		})

		It("keeps the failure message of a failed turn", func() {
			turn := NewTurn("turn-failed", "weatherAgent", 0)
			turn.Status = storage.StatusFailed
			turn.Error = "upstream model unavailable"
			turn.Response = ""
			Expect(driver.Put(ctx, turn)).To(Succeed())

			got, err := driver.Get(ctx, "turn-failed")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(storage.StatusFailed))
			Expect(got.Error).To(Equal("upstream model unavailable"))
			Expect(got.Response).To(BeEmpty())
		})

		It("replaces a turn stored under the same id", func() {
			Expect(driver.Put(ctx, NewTurn("turn-1", "weatherAgent", 0))).To(Succeed())
			updated := NewTurn("turn-1", "weatherAgent", 0)
			updated.Response = "Now it's raining."
			Expect(driver.Put(ctx, updated)).To(Succeed())

			got, err := driver.Get(ctx, "turn-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Response).To(Equal("Now it's raining."))

			all, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			var notFound storage.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
			Expect(err.Error()).To(Equal("turn not found: missing"))
		})

		It("rejects invalid turns", func() {
			Expect(driver.Put(ctx, nil)).To(HaveOccurred())
			Expect(driver.Put(ctx, &storage.Turn{Status: storage.StatusComplete})).To(HaveOccurred())
			Expect(driver.Put(ctx, &storage.Turn{ID: "x"})).To(HaveOccurred())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			Expect(driver.Put(ctx, NewTurn("a", "weatherAgent", 0))).To(Succeed())
			Expect(driver.Put(ctx, NewTurn("b", "scripted", time.Minute))).To(Succeed())
			Expect(driver.Put(ctx, NewTurn("c", "weatherAgent", 2*time.Minute))).To(Succeed())
		})

		It("returns turns newest first", func() {
			turns, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(turns)).To(Equal([]string{"c", "b", "a"}))
		})

		It("filters by agent", func() {
			turns, err := driver.List(ctx, storage.ListOptions{Agent: "weatherAgent"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(turns)).To(Equal([]string{"c", "a"}))
		})

		It("applies the limit", func() {
			turns, err := driver.List(ctx, storage.ListOptions{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(turns)).To(Equal([]string{"c", "b"}))
		})
	})
}

func ids(turns []*storage.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.ID)
	}
	return out
}
