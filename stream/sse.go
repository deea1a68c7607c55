package stream

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEEvent is one server-sent event frame.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry int
}

// SSEWriter frames events onto an http.ResponseWriter that supports
// flushing. Headers are set and flushed at construction so intermediaries
// open the stream immediately.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event streaming. It fails if w does not
// implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Anti-buffering marker for reverse proxies.
	h.Set("X-Accel-Buffering", "no")
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent frames one event and flushes it. Multi-line data is split into
// one data: line per line, per the SSE format.
func (s *SSEWriter) WriteEvent(ev SSEEvent) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Event)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteData frames a data-only event.
func (s *SSEWriter) WriteData(data string) error {
	return s.WriteEvent(SSEEvent{Data: data})
}

// WriteDone frames the terminal [DONE] marker.
func (s *SSEWriter) WriteDone() error {
	return s.WriteData("[DONE]")
}
