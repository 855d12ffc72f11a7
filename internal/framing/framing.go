// Package framing splits a text/event-stream body into events.
//
// The decoder is a pure function over an explicit accumulator: callers keep
// the remainder returned by Split and pass it back with the next chunk. No
// state is hidden inside a reader, which keeps the decode step testable
// without any network I/O.
package framing

import (
	"bytes"
	"strings"
)

// Delimiter terminates every event on the wire.
var Delimiter = []byte("\n\n")

// Event is one decoded event-stream segment.
type Event struct {
	// Type is the value of the "event:" field, empty when absent.
	Type string
	// ID is the value of the "id:" field, empty when absent.
	ID string
	// Data is the concatenation of all "data:" fields joined with "\n".
	Data string
	// HasData reports whether at least one "data:" field was present.
	HasData bool
}

// Split appends chunk to buf and returns every complete segment in order
// together with the unterminated remainder. Segments are returned without
// their trailing delimiter. Blank segments are dropped.
//
// The returned remainder never aliases chunk, so callers may reuse their read
// buffer.
func Split(buf, chunk []byte) (segments [][]byte, rest []byte) {
	data := make([]byte, 0, len(buf)+len(chunk))
	data = append(data, buf...)
	data = append(data, chunk...)

	for {
		i := bytes.Index(data, Delimiter)
		if i < 0 {
			break
		}
		seg := data[:i]
		data = data[i+len(Delimiter):]
		if len(bytes.TrimSpace(seg)) == 0 {
			continue
		}
		segments = append(segments, seg)
	}
	return segments, data
}

// Parse extracts the fields of a single segment. Lines starting with ':' are
// comments. A field name without a colon is treated as a field with an empty
// value. A single space after the colon is not part of the value.
func Parse(segment []byte) Event {
	var (
		ev   Event
		data []string
	)
	for _, line := range strings.Split(string(segment), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		}
	}
	if len(data) > 0 {
		ev.HasData = true
		ev.Data = strings.Join(data, "\n")
	}
	return ev
}
