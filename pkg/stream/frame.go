// Package stream implements the skycast streaming relay: the frame encoder,
// the pipe-backed stream transport and its driving loop on the producing side,
// and the frame decoder and reassembler on the consuming side.
//
// Frames travel as Server-Sent Events style records:
//
//	data: {"chunk":"It's "}\n\n
//	data: {"chunk":"sunny."}\n\n
//	data: {"done":true,"usage":{"promptTokens":12,"completionTokens":4,"totalTokens":16}}\n\n
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html for the
// line-oriented record convention the envelope follows.
package stream

import (
	"encoding/json"
	"errors"

	"github.com/papercomputeco/skycast/pkg/llm"
)

// Kind identifies which tag of a Frame is populated.
type Kind int

const (
	// KindChunk carries one text fragment.
	KindChunk Kind = iota + 1

	// KindDone marks successful completion. It is always the last frame.
	KindDone

	// KindError marks a failed stream. It is always the last frame.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrUntaggedFrame is returned when a payload parses as JSON but carries none
// of the chunk, done or error tags.
var ErrUntaggedFrame = errors.New("frame has no chunk, done or error tag")

// Frame is a single event on a stream. Exactly one of the chunk, done or error
// tags is populated, selected by Kind.
type Frame struct {
	Kind Kind

	// Text is the fragment for KindChunk frames.
	Text string

	// Usage is the final accounting for KindDone frames. May be nil.
	Usage *llm.Usage

	// Message is the failure description for KindError frames.
	Message string
}

// Chunk returns a chunk frame carrying text.
func Chunk(text string) Frame {
	return Frame{Kind: KindChunk, Text: text}
}

// Done returns a terminal success frame carrying usage.
func Done(usage *llm.Usage) Frame {
	return Frame{Kind: KindDone, Usage: usage}
}

// Failure returns a terminal error frame.
func Failure(message string) Frame {
	return Frame{Kind: KindError, Message: message}
}

// Terminal reports whether no frame may follow f on the same stream.
func (f Frame) Terminal() bool {
	return f.Kind == KindDone || f.Kind == KindError
}

// wireFrame is the JSON payload of an envelope. Pointers distinguish an absent
// tag from a zero value, so an empty chunk stays a chunk.
type wireFrame struct {
	Chunk *string    `json:"chunk,omitempty"`
	Done  bool       `json:"done,omitempty"`
	Usage *llm.Usage `json:"usage,omitempty"`
	Error *string    `json:"error,omitempty"`
}

// MarshalJSON encodes only the tag selected by Kind.
func (f Frame) MarshalJSON() ([]byte, error) {
	var w wireFrame
	switch f.Kind {
	case KindChunk:
		w.Chunk = &f.Text
	case KindDone:
		w.Done = true
		w.Usage = f.Usage
		if w.Usage == nil {
			w.Usage = &llm.Usage{}
		}
	case KindError:
		w.Error = &f.Message
	default:
		return nil, ErrUntaggedFrame
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a payload, selecting the first populated tag in the
// order chunk, done, error.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.Chunk != nil:
		*f = Chunk(*w.Chunk)
	case w.Done:
		*f = Done(w.Usage)
	case w.Error != nil:
		*f = Failure(*w.Error)
	default:
		return ErrUntaggedFrame
	}
	return nil
}
