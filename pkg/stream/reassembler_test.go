package stream_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/stream"
)

var _ = Describe("Reassembler", func() {
	It("reports accumulated text to the observer on every chunk", func() {
		body := encodeAll(stream.Chunk("Cloudy "), stream.Chunk("in Oslo."), stream.Done(nil))

		var seen []string
		re := stream.NewReassembler(stream.WithObserver(func(_, text string) {
			seen = append(seen, text)
		}))
		Expect(re.Run(context.Background(), iotest.OneByteReader(bytes.NewReader(body)))).To(Succeed())
		Expect(seen).To(Equal([]string{"Cloudy ", "Cloudy in Oslo."}))
	})

	It("fails with the message of an error frame", func() {
		body := encodeAll(stream.Chunk("partial"), stream.Failure("model overloaded"))

		re := stream.NewReassembler()
		err := re.Run(context.Background(), bytes.NewReader(body))

		var frameErr stream.ErrorFrameError
		Expect(err).To(BeAssignableToTypeOf(frameErr))
		Expect(err.(stream.ErrorFrameError).Message).To(Equal("model overloaded"))
		Expect(re.State()).To(Equal(stream.StateFailed))
		Expect(re.Text()).To(Equal("partial"))
	})

	It("fails as truncated when the stream ends without a terminal frame", func() {
		body := encodeAll(stream.Chunk("It's "))

		re := stream.NewReassembler()
		Expect(re.Run(context.Background(), bytes.NewReader(body))).To(MatchError(stream.ErrStreamTruncated))
		Expect(re.Text()).To(Equal("It's "))
	})

	It("drops an unterminated trailing record at end of stream", func() {
		body := append(encodeAll(stream.Chunk("kept")), []byte("data: {\"chunk\":\"lost\"}")...)

		re := stream.NewReassembler()
		Expect(re.Run(context.Background(), bytes.NewReader(body))).To(MatchError(stream.ErrStreamTruncated))
		Expect(re.Text()).To(Equal("kept"))
	})

	It("ignores everything after the done frame", func() {
		body := encodeAll(stream.Chunk("a"), stream.Done(&llm.Usage{TotalTokens: 1}), stream.Chunk("b"))

		re := stream.NewReassembler()
		Expect(re.Run(context.Background(), bytes.NewReader(body))).To(Succeed())
		Expect(re.Text()).To(Equal("a"))
		Expect(re.Usage().TotalTokens).To(Equal(1))
		Expect(re.Handle(stream.Chunk("c"))).To(BeFalse())
		Expect(re.Text()).To(Equal("a"))
	})

	It("skips malformed records without failing", func() {
		body := "data: {\"chunk\":\"a\"}\n\ndata: nope\n\ndata: {\"chunk\":\"b\"}\n\ndata: {\"done\":true}\n\n"

		re := stream.NewReassembler()
		Expect(re.Run(context.Background(), strings.NewReader(body))).To(Succeed())
		Expect(re.Text()).To(Equal("ab"))
		Expect(re.Dropped()).To(Equal(1))
	})

	It("surfaces read errors", func() {
		re := stream.NewReassembler()
		err := re.Run(context.Background(), iotest.ErrReader(io.ErrUnexpectedEOF))
		Expect(err).To(MatchError(io.ErrUnexpectedEOF))
		Expect(re.State()).To(Equal(stream.StateFailed))
	})

	It("stops a blocked read when the context is cancelled", func() {
		pr, pw := io.Pipe()
		defer pw.Close()

		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		re := stream.NewReassembler()
		go func() { errs <- re.Run(ctx, pr) }()

		Consistently(errs).ShouldNot(Receive())
		cancel()

		var err error
		Eventually(errs).Should(Receive(&err))
		Expect(err).To(MatchError(context.Canceled))
		Expect(re.State()).To(Equal(stream.StateFailed))
	})

	It("fails on an oversized record", func() {
		body := "data: {\"chunk\":\"" + strings.Repeat("x", 128)
		re := stream.NewReassembler(stream.WithDecoder(stream.NewDecoder(stream.WithMaxPendingBytes(64))))
		Expect(re.Run(context.Background(), strings.NewReader(body))).To(MatchError(stream.ErrFrameTooLarge))
	})
})
