package stream_test

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/papercomputeco/skycast/pkg/llm"
)

var errUpstream = errors.New("upstream model unavailable")

// sliceSource yields fixed fragments and optionally fails after failAfter of
// them.
type sliceSource struct {
	fragments []string
	usage     *llm.Usage
	failAfter int
	failErr   error

	pos    int
	closed atomic.Bool
}

func newSliceSource(fragments ...string) *sliceSource {
	return &sliceSource{
		fragments: fragments,
		usage:     &llm.Usage{PromptTokens: 12, CompletionTokens: len(fragments), TotalTokens: 12 + len(fragments)},
		failAfter: -1,
	}
}

func (s *sliceSource) failingAfter(n int, err error) *sliceSource {
	s.failAfter = n
	s.failErr = err
	return s
}

func (s *sliceSource) Next() (string, error) {
	if s.failAfter >= 0 && s.pos == s.failAfter {
		return "", s.failErr
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Usage() *llm.Usage {
	return s.usage
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// chunkedReader returns at most sizes[i] bytes on the i-th read, cycling
// through sizes.
type chunkedReader struct {
	r     io.Reader
	sizes []int
	i     int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	n := len(p)
	if len(c.sizes) > 0 {
		size := c.sizes[c.i%len(c.sizes)]
		c.i++
		if size > 0 && size < n {
			n = size
		}
	}
	return c.r.Read(p[:n])
}

// splitAt cuts b into pieces of the given sizes, with the remainder last.
func splitAt(b []byte, sizes []int) [][]byte {
	var out [][]byte
	for i := 0; len(b) > 0; i++ {
		n := len(b)
		if len(sizes) > 0 {
			n = min(max(sizes[i%len(sizes)], 1), len(b))
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
