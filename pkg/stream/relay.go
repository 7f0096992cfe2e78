package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/skycast/pkg/llm"
)

// Source is an ordered, finite, non-restartable sequence of text fragments.
// Next returns io.EOF once the sequence is exhausted, after which Usage
// reports the final accounting. Close releases the source and cancels any
// upstream work still in flight.
type Source interface {
	Next() (string, error)
	Usage() *llm.Usage
	Close() error
}

// RelayResult summarizes a relayed stream.
type RelayResult struct {
	// Text is the concatenation of every fragment that was written.
	Text string

	// Chunks is the number of chunk frames written.
	Chunks int

	// Usage is the source's final accounting. Nil when the stream failed.
	Usage *llm.Usage
}

// Relay drives src into t: one chunk frame per fragment in pull order, then a
// done frame carrying the source's usage, then Close. Any pull or write error
// aborts the transport and is returned, and no terminal frame is written.
// The source is always closed before Relay returns.
func Relay(src Source, t *Transport) (RelayResult, error) {
	defer src.Close()

	var (
		result RelayResult
		text   strings.Builder
	)

	for {
		fragment, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			err = fmt.Errorf("pulling fragment %d: %w", result.Chunks, err)
			t.Abort(err)
			result.Text = text.String()
			return result, err
		}

		if err := t.Write(Chunk(fragment)); err != nil {
			t.Abort(err)
			result.Text = text.String()
			return result, err
		}

		text.WriteString(fragment)
		result.Chunks++
	}

	result.Text = text.String()
	result.Usage = src.Usage()

	if err := t.Write(Done(result.Usage)); err != nil {
		t.Abort(err)
		result.Usage = nil
		return result, err
	}

	return result, t.Close()
}

// primed replays a fragment pulled ahead of time before delegating to the
// wrapped source.
type primed struct {
	Source

	first   string
	pending bool
}

func (p *primed) Next() (string, error) {
	if p.pending {
		p.pending = false
		return p.first, nil
	}
	return p.Source.Next()
}

// exhausted is a source that ended before yielding anything.
type exhausted struct {
	Source
}

func (exhausted) Next() (string, error) {
	return "", io.EOF
}

// Prime pulls the first fragment of src before any response bytes are
// committed, so that an early upstream failure can still be answered with an
// ordinary error response. The returned Source yields the same sequence src
// would have. On error src is left open for the caller to close.
func Prime(src Source) (Source, error) {
	first, err := src.Next()
	if errors.Is(err, io.EOF) {
		return exhausted{Source: src}, nil
	}
	if err != nil {
		return nil, err
	}
	return &primed{Source: src, first: first, pending: true}, nil
}
