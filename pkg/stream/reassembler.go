package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/skycast/pkg/llm"
	"github.com/papercomputeco/skycast/pkg/logger"
)

// readBufferSize is the size of each read issued against the stream body.
const readBufferSize = 4096

// ErrStreamTruncated is the failure recorded when the stream ends before a
// done or error frame arrives.
var ErrStreamTruncated = errors.New("stream ended before a terminal frame")

// ErrorFrameError is the failure recorded when the producer sends an error
// frame.
type ErrorFrameError struct {
	Message string
}

func (e ErrorFrameError) Error() string {
	return fmt.Sprintf("stream error frame: %s", e.Message)
}

// State is the lifecycle position of a Reassembler.
type State int

const (
	// StateStreaming accepts chunk frames.
	StateStreaming State = iota

	// StateComplete is reached on a done frame. Terminal.
	StateComplete

	// StateFailed is reached on an error frame, a read failure or a truncated
	// stream. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer is called synchronously for each chunk with the new fragment and
// the text accumulated so far, fragment included.
type Observer func(fragment, text string)

// Reassembler consumes an event stream and reconstructs the original text in
// order. It is the pull side of the pipeline: Run issues reads, feeds them to
// a Decoder and applies the recovered frames one at a time.
type Reassembler struct {
	decoder  *Decoder
	observer Observer
	logger   *slog.Logger

	mu    sync.Mutex
	text  strings.Builder
	state State
	usage *llm.Usage
	err   error
	count int
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithObserver registers fn to be called for every chunk.
func WithObserver(fn Observer) ReassemblerOption {
	return func(r *Reassembler) {
		r.observer = fn
	}
}

// WithDecoder replaces the default Decoder.
func WithDecoder(d *Decoder) ReassemblerOption {
	return func(r *Reassembler) {
		r.decoder = d
	}
}

// WithLogger sets the logger used for dropped record diagnostics.
func WithLogger(l *slog.Logger) ReassemblerOption {
	return func(r *Reassembler) {
		r.logger = l
	}
}

// NewReassembler returns a Reassembler in StateStreaming.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{}
	for _, opt := range opts {
		opt(r)
	}
	if r.decoder == nil {
		r.decoder = NewDecoder()
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// Run reads body until a terminal frame, a read error or ctx cancellation,
// and returns the resulting failure, if any. A clean run ends in
// StateComplete and returns nil.
//
// If body implements io.Closer it is closed when ctx is cancelled so that a
// blocked read returns.
func (r *Reassembler) Run(ctx context.Context, body io.Reader) error {
	if c, ok := body.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = c.Close()
		})
		defer stop()
	}

	buf := make([]byte, readBufferSize)
	for r.State() == StateStreaming {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			break
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			frames, err := r.decoder.Feed(buf[:n])
			for _, f := range frames {
				if !r.Handle(f) {
					break
				}
			}
			if err != nil && r.State() == StateStreaming {
				r.fail(err)
			}
		}

		if readErr == nil || r.State() != StateStreaming {
			continue
		}

		switch {
		case ctx.Err() != nil:
			r.fail(ctx.Err())
		case errors.Is(readErr, io.EOF):
			r.fail(ErrStreamTruncated)
		default:
			r.fail(fmt.Errorf("reading stream: %w", readErr))
		}
	}

	if dropped := r.decoder.Dropped(); dropped > 0 {
		r.logger.Debug("dropped malformed stream records", "dropped", dropped)
	}

	return r.Err()
}

// Handle applies a single frame and reports whether the reassembler still
// accepts frames afterwards. Frames arriving after a terminal state are
// ignored.
func (r *Reassembler) Handle(f Frame) bool {
	r.mu.Lock()
	if r.state != StateStreaming {
		r.mu.Unlock()
		return false
	}

	switch f.Kind {
	case KindChunk:
		r.text.WriteString(f.Text)
		r.count++
		text := r.text.String()
		observer := r.observer
		r.mu.Unlock()

		if observer != nil {
			observer(f.Text, text)
		}
		return true

	case KindDone:
		r.usage = f.Usage
		r.state = StateComplete
		r.mu.Unlock()
		return false

	case KindError:
		r.state = StateFailed
		r.err = ErrorFrameError{Message: f.Message}
		r.mu.Unlock()
		return false

	default:
		r.mu.Unlock()
		return true
	}
}

func (r *Reassembler) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateStreaming {
		return
	}
	r.state = StateFailed
	r.err = err
}

// Text returns the text reassembled so far.
func (r *Reassembler) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

// State returns the current lifecycle state.
func (r *Reassembler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Usage returns the usage carried by the done frame, or nil.
func (r *Reassembler) Usage() *llm.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Err returns the failure that moved the reassembler to StateFailed.
func (r *Reassembler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Chunks returns the number of chunk frames applied.
func (r *Reassembler) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns the number of malformed records the decoder discarded.
func (r *Reassembler) Dropped() int {
	return r.decoder.Dropped()
}
