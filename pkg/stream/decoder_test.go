package stream_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/stream"
)

func encodeAll(frames ...stream.Frame) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		b, err := stream.Encode(f)
		Expect(err).NotTo(HaveOccurred())
		buf.Write(b)
	}
	return buf.Bytes()
}

func feedAll(d *stream.Decoder, pieces ...[]byte) []stream.Frame {
	var out []stream.Frame
	for _, p := range pieces {
		frames, err := d.Feed(p)
		Expect(err).NotTo(HaveOccurred())
		out = append(out, frames...)
	}
	return out
}

var _ = Describe("Decoder", func() {
	var (
		paris   []stream.Frame
		encoded []byte
	)

	BeforeEach(func() {
		paris = []stream.Frame{
			stream.Chunk("It's "),
			stream.Chunk("sunny "),
			stream.Chunk("in Paris."),
			stream.Done(&llm.Usage{PromptTokens: 9, CompletionTokens: 3, TotalTokens: 12}),
		}
		encoded = encodeAll(paris...)
	})

	It("decodes a whole stream in one feed", func() {
		d := stream.NewDecoder()
		Expect(feedAll(d, encoded)).To(Equal(paris))
		Expect(d.Pending()).To(BeZero())
	})

	It("yields the same frames for every two-piece split", func() {
		for i := 0; i <= len(encoded); i++ {
			d := stream.NewDecoder()
			got := feedAll(d, encoded[:i], encoded[i:])
			Expect(got).To(Equal(paris), "split at offset %d", i)
		}
	})

	It("decodes a byte at a time", func() {
		d := stream.NewDecoder()
		var got []stream.Frame
		for _, b := range encoded {
			got = append(got, feedAll(d, []byte{b})...)
		}
		Expect(got).To(Equal(paris))
	})

	It("holds a partial data prefix until the record completes", func() {
		d := stream.NewDecoder()
		Expect(feedAll(d, []byte("da"))).To(BeEmpty())
		Expect(d.Pending()).To(Equal(2))
		Expect(feedAll(d, []byte("ta: {\"chunk\":\"hi\"}\n"))).To(BeEmpty())
		Expect(feedAll(d, []byte("\n"))).To(Equal([]stream.Frame{stream.Chunk("hi")}))
	})

	It("treats an empty feed as a no-op", func() {
		d := stream.NewDecoder()
		frames, err := d.Feed(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(BeEmpty())
		Expect(d.Pending()).To(BeZero())
	})

	It("drops a malformed record between valid frames", func() {
		d := stream.NewDecoder()
		input := "data: {\"chunk\":\"a\"}\n\n" +
			"data: {not json\n\n" +
			"data: {\"chunk\":\"b\"}\n\n"
		Expect(feedAll(d, []byte(input))).To(Equal([]stream.Frame{stream.Chunk("a"), stream.Chunk("b")}))
		Expect(d.Dropped()).To(Equal(1))
	})

	It("drops untagged payloads and records without data", func() {
		d := stream.NewDecoder()
		input := "data: {\"unrelated\":1}\n\n" +
			"event: ping\n\n" +
			"data: {\"chunk\":\"kept\"}\n\n"
		Expect(feedAll(d, []byte(input))).To(Equal([]stream.Frame{stream.Chunk("kept")}))
		Expect(d.Dropped()).To(Equal(2))
	})

	It("ignores keep-alive comments without counting them", func() {
		d := stream.NewDecoder()
		input := ": keep-alive\n\n" + "data: {\"chunk\":\"x\"}\n\n"
		Expect(feedAll(d, []byte(input))).To(Equal([]stream.Frame{stream.Chunk("x")}))
		Expect(d.Dropped()).To(BeZero())
	})

	It("accepts CRLF line endings and data without a space", func() {
		d := stream.NewDecoder()
		input := "data:{\"chunk\":\"crlf\"}\r\n\n"
		Expect(feedAll(d, []byte(input))).To(Equal([]stream.Frame{stream.Chunk("crlf")}))
	})

	It("joins multiple data lines", func() {
		d := stream.NewDecoder()
		input := "id: 7\ndata: {\"chunk\":\ndata: \"joined\"}\n\n"
		Expect(feedAll(d, []byte(input))).To(Equal([]stream.Frame{stream.Chunk("joined")}))
	})

	It("fails when a partial record outgrows the limit", func() {
		d := stream.NewDecoder(stream.WithMaxPendingBytes(32))
		_, err := d.Feed([]byte("data: {\"chunk\":\"" + strings.Repeat("x", 64)))
		Expect(err).To(MatchError(stream.ErrFrameTooLarge))
	})

	It("discards the partial record on reset", func() {
		d := stream.NewDecoder()
		feedAll(d, []byte("data: {\"chunk\""))
		d.Reset()
		Expect(d.Pending()).To(BeZero())
	})
})
