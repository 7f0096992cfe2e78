package stream

import (
	"encoding/json"
	"fmt"
)

const (
	// dataPrefix is the fixed prefix of every envelope line.
	dataPrefix = "data: "

	// terminator ends a record. JSON payloads never contain a raw newline,
	// so the first blank line after the prefix always closes the record.
	terminator = "\n\n"
)

// Encode serializes f into exactly one envelope: "data: <json>\n\n".
// Encoding is pure. It only fails for a Frame with no Kind.
func Encode(f Frame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Kind, err)
	}

	out := make([]byte, 0, len(dataPrefix)+len(payload)+len(terminator))
	out = append(out, dataPrefix...)
	out = append(out, payload...)
	out = append(out, terminator...)
	return out, nil
}
