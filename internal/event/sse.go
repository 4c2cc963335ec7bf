package event

import (
	"encoding/json"
	"fmt"
	"io"
)

// SSEWriter is the subset of http.ResponseWriter the encoder needs.
// Generalized from pkg/agui/stream_adapter.go's SSEWriter interface.
type SSEWriter interface {
	io.Writer
	Flush()
}

// Encoder writes Events to an SSE stream, one frame per event, in the
// "event: <type>\ndata: <json>\n\n" shape of spec §6.
type Encoder struct {
	w SSEWriter
}

func NewEncoder(w SSEWriter) *Encoder { return &Encoder{w: w} }

// Write emits one SSE frame and flushes immediately so the client sees it
// without buffering delay.
func (e *Encoder) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	e.w.Flush()
	return nil
}

// WriteKeepAlive emits an SSE comment frame, which is not an Event and
// carries no semantic meaning beyond keeping the connection alive.
func (e *Encoder) WriteKeepAlive() error {
	if _, err := fmt.Fprint(e.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	e.w.Flush()
	return nil
}
