package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrTransportClosed is returned by Write once the transport has been closed
// or aborted.
var ErrTransportClosed = errors.New("stream transport closed")

// Transport is the producing end of one event stream. Frames written to it are
// encoded and pushed through an io.Pipe whose reader is handed to the HTTP
// layer as the response body, so every Write blocks until the network side has
// consumed the previous bytes.
//
// A Transport has a single writer. Abort may be called from any goroutine.
type Transport struct {
	pw *io.PipeWriter

	mu      sync.Mutex
	closed  bool
	written int64
	frames  int
}

// NewTransport returns a Transport together with the reader the consumer
// drains. The reader observes io.EOF after Close and the abort error after
// Abort.
func NewTransport() (*Transport, io.Reader) {
	pr, pw := io.Pipe()
	return &Transport{pw: pw}, pr
}

// Write encodes f and delivers it to the reader. It returns ErrTransportClosed
// after Close or Abort, and the pipe error when the reader has gone away.
func (t *Transport) Write(f Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	b, err := Encode(f)
	if err != nil {
		return err
	}

	// The lock is not held across the pipe write: Abort must be able to
	// unblock a writer stalled on a slow reader.
	n, err := t.pw.Write(b)

	t.mu.Lock()
	t.written += int64(n)
	if err == nil {
		t.frames++
	}
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Kind, err)
	}
	return nil
}

// Close ends the stream cleanly. The reader sees io.EOF once it has drained
// every written frame.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.pw.Close()
}

// Abort ends the stream abruptly with err. No further frame is written, and
// the reader sees err instead of io.EOF.
func (t *Transport) Abort(err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	_ = t.pw.CloseWithError(err)
}

// Closed reports whether Close or Abort has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// BytesWritten returns the number of encoded bytes accepted by the reader.
func (t *Transport) BytesWritten() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// FramesWritten returns the number of frames fully delivered.
func (t *Transport) FramesWritten() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}
