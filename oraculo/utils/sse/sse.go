// Package sse writes server-sent events.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event is one SSE frame. Data is JSON-encoded unless it is a string or []byte.
type Event struct {
	Event string
	Data  interface{}
	ID    string
	Retry int
}

// SetHeaders prepares w for an event stream.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Send writes an event and flushes it.
func Send(w *bufio.Writer, event Event) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("failed to write retry: %w", err)
		}
	}
	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return fmt.Errorf("failed to write event type: %w", err)
		}
	}

	var dataStr string
	switch v := event.Data.(type) {
	case string:
		dataStr = v
	case []byte:
		dataStr = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataStr = string(data)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", dataStr); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}
	return w.Flush()
}

// SendChunk sends one streamed text fragment.
func SendChunk(w *bufio.Writer, text string) error {
	return Send(w, Event{Event: EventChunk, Data: map[string]string{"text": text}})
}

func SendDone(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventDone, Data: data})
}

func SendError(w *bufio.Writer, kind string, err error) error {
	return Send(w, Event{
		Event: EventError,
		Data: map[string]interface{}{
			"type":    kind,
			"message": err.Error(),
		},
	})
}
