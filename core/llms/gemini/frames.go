package gemini

import (
	"bytes"
	"strings"
)

const (
	dataPrefix = "data:"
	endMessage = "[DONE]"
)

var frameTerminator = []byte("\n\n")

// frameReader reassembles event-stream frames from arbitrarily chunked
// transport reads. Frames are terminated by a blank line; bytes of an
// unterminated frame are retained until the next read, so the emitted frames
// do not depend on where the transport happened to split the stream.
type frameReader struct {
	buf []byte
}

// Ingest appends raw bytes and returns the payload of every frame completed
// by them, in order. Frames with no data lines yield nothing.
func (r *frameReader) Ingest(p []byte) []string {
	if r == nil {
		return nil
	}

	r.buf = append(r.buf, p...)

	var payloads []string
	for {
		i := bytes.Index(r.buf, frameTerminator)
		if i == -1 {
			return payloads
		}

		raw := string(r.buf[:i])
		r.buf = r.buf[i+len(frameTerminator):]
		if payload, ok := parseFrame(raw); ok {
			payloads = append(payloads, payload)
		}
	}
}

// Flush drains an unterminated trailing frame once the stream has ended.
func (r *frameReader) Flush() (string, bool) {
	if r == nil || len(r.buf) == 0 {
		return "", false
	}

	raw := string(r.buf)
	r.buf = nil
	return parseFrame(raw)
}

// parseFrame extracts the data payload from one raw frame. Only lines
// carrying the data prefix are retained; blank data lines, the end-of-stream
// sentinel and non-data lines (comments, keep-alives) are ignored.
func parseFrame(raw string) (string, bool) {
	var dataLines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		value := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if value == "" || value == endMessage {
			continue
		}
		dataLines = append(dataLines, value)
	}

	if len(dataLines) == 0 {
		return "", false
	}
	return strings.Join(dataLines, "\n"), true
}
