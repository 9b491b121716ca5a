package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// WriteEvent frames ev onto w in the progress wire format:
//
//	event: <kind>\n
//	data: <json>\n
//	\n
func WriteEvent(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return fmt.Errorf("write event frame: %w", err)
	}
	return nil
}

// Decoder reassembles events from a progress stream delivered in arbitrary
// chunks. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed appends a chunk to the internal buffer and returns the events whose
// frames it completed, in stream order. Malformed frames are dropped.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.Index(d.buf, []byte("\n\n"))
		if i < 0 {
			return events
		}
		frame := d.buf[:i]
		d.buf = d.buf[i+2:]
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
}

// Flush parses buffered trailing data that was never terminated by a blank
// line, for streams that end mid-frame.
func (d *Decoder) Flush() (Event, bool) {
	frame := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(frame) == 0 {
		return Event{}, false
	}
	return parseFrame(frame)
}

// parseFrame decodes one event/data frame. Frames missing either field or
// carrying invalid JSON are rejected.
func parseFrame(frame []byte) (Event, bool) {
	var kind Kind
	var data []byte

	for _, line := range bytes.Split(frame, []byte("\n")) {
		field, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		value = bytes.TrimSpace(value)
		switch string(bytes.TrimSpace(field)) {
		case "event":
			kind = Kind(value)
		case "data":
			data = value
		}
	}

	if kind == "" || data == nil {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}
	ev.Kind = kind
	return ev, true
}
