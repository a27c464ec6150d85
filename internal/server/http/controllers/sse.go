package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes Server-Sent Events to a streaming response.
type sseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &sseSink{w: w, f: f}, true
}

// Send writes one named event with a JSON data line.
func (s *sseSink) Send(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

// Comment writes an SSE comment line, used as a keepalive.
func (s *sseSink) Comment(text string) error {
	_, err := fmt.Fprintf(s.w, ": %s\n\n", text)
	return err
}

func (s *sseSink) Flush() { s.f.Flush() }
