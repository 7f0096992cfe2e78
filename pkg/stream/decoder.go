package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// DefaultMaxPendingBytes bounds the bytes a Decoder holds for a single
// unterminated record.
const DefaultMaxPendingBytes = 1024 * 1024

// ErrFrameTooLarge is returned by Feed when an unterminated record outgrows
// the decoder's pending limit.
var ErrFrameTooLarge = errors.New("stream record exceeds maximum pending size")

// Decoder turns a byte stream arriving in arbitrarily sized and aligned chunks
// into Frames. It never drops or duplicates a well-formed frame because of
// where a chunk boundary falls.
//
// A Decoder is per-connection state and is not safe for concurrent use.
type Decoder struct {
	// buf holds every byte received but not yet resolved into a record.
	buf []byte

	maxPending int
	dropped    int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxPendingBytes overrides DefaultMaxPendingBytes.
func WithMaxPendingBytes(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxPending = n
	}
}

// NewDecoder returns an empty Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{maxPending: DefaultMaxPendingBytes}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the decode buffer and returns the frames completed by
// it, in stream order. Bytes after the last record terminator stay buffered
// until a later chunk completes them.
//
// Records that are not well-formed (no data field, invalid JSON, no tag) are
// dropped silently and counted in Dropped. Feed only returns an error when the
// pending partial record exceeds the configured limit.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	d.buf = append(d.buf, chunk...)

	var frames []Frame
	consumed := 0
	for {
		idx := bytes.Index(d.buf[consumed:], []byte(terminator))
		if idx < 0 {
			break
		}

		record := d.buf[consumed : consumed+idx]
		consumed += idx + len(terminator)

		frame, ok := d.parseRecord(record)
		if ok {
			frames = append(frames, frame)
		}
	}

	// Compact so the buffer only ever holds the partial trailing record.
	if consumed > 0 {
		d.buf = append(d.buf[:0], d.buf[consumed:]...)
	}

	if d.maxPending > 0 && len(d.buf) > d.maxPending {
		return frames, ErrFrameTooLarge
	}

	return frames, nil
}

// Pending returns the number of buffered bytes awaiting a record terminator.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Dropped returns how many complete records were discarded as malformed.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Reset discards any buffered partial record.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// parseRecord extracts the data payload of a single record and decodes it.
//
// Per the SSE convention a line has the form "field:value" where one leading
// space in the value is optional. Multiple data lines are joined with "\n".
// Comment lines (leading ':') and other fields are ignored.
func (d *Decoder) parseRecord(record []byte) (Frame, bool) {
	var (
		data    strings.Builder
		hasData bool
	)

	for line := range strings.SplitSeq(string(record), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}

		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
		hasData = true
	}

	if !hasData {
		// Keep-alive comments and blank records carry no frame and do not
		// count as malformed.
		if len(bytes.TrimSpace(record)) > 0 && !bytes.HasPrefix(bytes.TrimSpace(record), []byte(":")) {
			d.dropped++
		}
		return Frame{}, false
	}

	var f Frame
	if err := json.Unmarshal([]byte(data.String()), &f); err != nil {
		d.dropped++
		return Frame{}, false
	}

	return f, true
}
