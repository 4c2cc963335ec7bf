package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

// errorBody is spec §6's error shape: {error, details?, timestamp,
// tool_call_id?}.
type errorBody struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Timestamp  string `json:"timestamp"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorBody{Error: message, Details: details, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

// statusForKind maps the runtime error taxonomy (spec §7) onto HTTP status
// codes for handlers that surface a runtimeerr.RunError directly.
func statusForKind(k runtimeerr.Kind) int {
	switch k {
	case runtimeerr.KindValidation, runtimeerr.KindParsing:
		return http.StatusBadRequest
	case runtimeerr.KindAuthDenied:
		return http.StatusForbidden
	case runtimeerr.KindAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	var re *runtimeerr.RunError
	if errors.As(err, &re) {
		writeError(w, statusForKind(re.Kind), re.Message, "")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error(), "")
}
