// Package stream folds frames from a streaming backend into the same run
// state the simulated engine produces.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/agentflow/internal/domain"
)

// DefaultMarker prefixes every control frame on the wire.
const DefaultMarker = "data: "

// Frame is one decoded line. Err is set when the line carried the marker but
// not a valid control frame.
type Frame struct {
	Event domain.StreamEvent
	Raw   string
	Err   error
}

type wireEvent struct {
	Step   *int            `json:"step"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Decode splits buf into complete lines and parses every marked line.
// The trailing partial line is returned as remainder. Blank lines and lines
// without the marker are skipped.
func Decode(buf []byte, marker string) (frames []Frame, remainder []byte) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if f, ok := parseLine(buf[:i], marker); ok {
			frames = append(frames, f)
		}
		buf = buf[i+1:]
	}
	return frames, buf
}

func parseLine(line []byte, marker string) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return Frame{}, false
	}
	if !bytes.HasPrefix(line, []byte(marker)) {
		return Frame{}, false
	}
	payload := bytes.TrimSpace(line[len(marker):])
	f := Frame{Raw: string(payload)}

	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		f.Err = fmt.Errorf("%w: %v", domain.ErrProtocolViolation, err)
		return f, true
	}
	if w.Step == nil {
		f.Err = fmt.Errorf("%w: frame has no step", domain.ErrProtocolViolation)
		return f, true
	}
	f.Event = domain.StreamEvent{Step: *w.Step, Status: w.Status, Result: w.Result}
	return f, true
}

// Decoder buffers partial lines across Feed calls.
type Decoder struct {
	marker string
	buf    []byte
}

// NewDecoder creates a decoder for the given marker; empty means DefaultMarker.
func NewDecoder(marker string) *Decoder {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Decoder{marker: marker}
}

// Feed appends a chunk and returns the frames it completed.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)
	frames, rest := Decode(d.buf, d.marker)
	d.buf = append(d.buf[:0], rest...)
	return frames
}

// Flush decodes a final unterminated line, if any.
func (d *Decoder) Flush() []Frame {
	if len(d.buf) == 0 {
		return nil
	}
	f, ok := parseLine(d.buf, d.marker)
	d.buf = nil
	if !ok {
		return nil
	}
	return []Frame{f}
}

// Buffered returns the number of bytes waiting for a newline.
func (d *Decoder) Buffered() int { return len(d.buf) }

// EncodeFrame renders an event as one wire line.
func EncodeFrame(marker string, ev domain.StreamEvent) ([]byte, error) {
	if marker == "" {
		marker = DefaultMarker
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	out := make([]byte, 0, len(marker)+len(data)+1)
	out = append(out, marker...)
	out = append(out, data...)
	return append(out, '\n'), nil
}
