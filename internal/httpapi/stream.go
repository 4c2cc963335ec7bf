package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kadirpekel/oversight/internal/event"
	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/stream"
)

// runAgentInputBody is the wire shape of RunAgentInput (spec §3), trimmed
// to the fields the bridge consumes.
type runAgentInputBody struct {
	ThreadID string           `json:"thread_id"`
	RunID    string           `json:"run_id"`
	Messages []wireMessage    `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (b runAgentInputBody) toRunInput() stream.RunInput {
	msgs := make([]message.Message, 0, len(b.Messages))
	for _, m := range b.Messages {
		msgs = append(msgs, message.Message{Role: message.Role(m.Role), Content: m.Content})
	}
	threadID, runID := b.ThreadID, b.RunID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return stream.RunInput{ThreadID: threadID, RunID: runID, Messages: msgs}
}

// flusherWriter adapts http.ResponseWriter to event.SSEWriter.
type flusherWriter struct {
	w http.ResponseWriter
}

func (f flusherWriter) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f flusherWriter) Flush() {
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
}

// handleStream drives one run over SSE (spec §4.2, §6). Grounded on
// pkg/agui/stream_adapter.go's "event: %s\ndata: %s\n\n" SSE framing,
// generalized to consume the bridge's two-channel (events, keep-alive)
// output instead of a single gRPC stream sink.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var body runAgentInputBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid input", "Messages cannot be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := event.NewEncoder(flusherWriter{w})
	ctx := r.Context()

	events, keepAlive := s.bridge.Run(ctx, body.toRunInput())
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Write(ev); err != nil {
				return
			}
		case _, ok := <-keepAlive:
			if !ok {
				continue
			}
			if err := enc.WriteKeepAlive(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
