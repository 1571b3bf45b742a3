// Package sse decodes text/event-stream bodies into discrete events.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"
)

// maxLineSize bounds a single field line. Build payloads are small JSON
// documents, so 1 MiB is generous.
const maxLineSize = 1 << 20

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Event is one dispatched server-sent event. Data is only valid until
// Release is called.
type Event struct {
	ID    string
	Type  string
	Data  []byte
	Retry time.Duration

	buf      *bytes.Buffer
	released bool
}

// Release returns the event's data buffer to the pool. Releasing an event
// twice panics.
func (e *Event) Release() {
	if e.released {
		panic("sse: event released twice")
	}
	e.released = true
	e.Data = nil
	if e.buf != nil {
		e.buf.Reset()
		bufferPool.Put(e.buf)
		e.buf = nil
	}
}

// Decoder reads events from an event stream.
type Decoder struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	return &Decoder{scanner: scanner}
}

// Decode returns the next event. It returns io.EOF once the stream ends
// cleanly. Any partial event left at the end of the stream is dropped.
func (d *Decoder) Decode() (*Event, error) {
	var (
		eventType string
		retry     time.Duration
		buf       *bytes.Buffer
		hasData   bool
	)

	discard := func() {
		if buf != nil {
			buf.Reset()
			bufferPool.Put(buf)
		}
	}

	for d.scanner.Scan() {
		line := d.scanner.Bytes()

		if len(line) == 0 {
			if !hasData {
				// Nothing to dispatch; reset the per-event fields.
				eventType = ""
				retry = 0
				continue
			}
			return &Event{
				ID:    d.lastID,
				Type:  eventType,
				Data:  buf.Bytes(),
				Retry: retry,
				buf:   buf,
			}, nil
		}

		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "id":
			// An id containing NUL is ignored.
			if bytes.IndexByte(value, 0) < 0 {
				d.lastID = string(value)
			}
		case "event":
			eventType = string(value)
		case "data":
			if buf == nil {
				buf = bufferPool.Get().(*bytes.Buffer)
			}
			if hasData {
				buf.WriteByte('\n')
			}
			buf.Write(value)
			hasData = true
		case "retry":
			if ms, err := strconv.ParseInt(string(value), 10, 64); err == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	discard()
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func splitField(line []byte) (string, []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return string(line), nil
	}
	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:colon]), value
}

// scanLines splits on \n, \r\n or a lone \r.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need more data to know whether \n follows.
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
