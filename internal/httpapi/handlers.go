package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kadirpekel/oversight/internal/authz"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.Version,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats := s.mem.Stats(s.cfg.MaxHistorySteps)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"memory_stats": map[string]any{
			"trace_steps":             stats.TraceSteps,
			"conversation_messages":   stats.ConversationMessages,
			"user_tasks":              stats.UserTasks,
			"thoughts":                stats.Thoughts,
			"actions":                 stats.Actions,
			"observations":            stats.Observations,
			"successful_observations": stats.SuccessfulObservations,
			"failed_observations":     stats.FailedObservations,
			"errors":                  stats.Errors,
			"utilization_percentage":  stats.UtilizationPercentage,
			"config": map[string]any{
				"max_history_steps": s.cfg.MaxHistorySteps,
			},
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearMemory()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "memory cleared",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type authConfigBody struct {
	Mode       string `json:"mode"`
	TimeoutSec int    `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleGetAuthConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"config":    authConfigBody{Mode: string(s.authz.Mode())},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSetAuthConfig(w http.ResponseWriter, r *http.Request) {
	var body authConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	switch authz.Mode(body.Mode) {
	case authz.ModeAsk, authz.ModeAlwaysAllow, authz.ModeAlwaysDeny, authz.ModeDisabled:
		s.authz.SetMode(authz.Mode(body.Mode))
	default:
		writeError(w, http.StatusBadRequest, "invalid authorization mode", body.Mode)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "authorization config updated",
		"config":    authConfigBody{Mode: body.Mode},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type authorizationResponseBody struct {
	ToolCallID string `json:"tool_call_id"`
	Response   string `json:"response"`
}

// responseToReply translates the wire-facing Approve/Deny/ApproveAndAllow
// vocabulary (spec §6) into the coordinator's internal Reply type.
func responseToReply(response string) (authz.Reply, bool) {
	switch response {
	case "Approve":
		return authz.ReplyApprove, true
	case "Deny":
		return authz.ReplyDeny, true
	case "ApproveAndAllow":
		return authz.ReplyApproveAndAllow, true
	default:
		return "", false
	}
}

func (s *Server) handleAuthorizationResponse(w http.ResponseWriter, r *http.Request) {
	var body authorizationResponseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	reply, ok := responseToReply(body.Response)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid response value", body.Response)
		return
	}
	if err := s.authz.HandleResponse(body.ToolCallID, reply); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"tool_call_id": body.ToolCallID,
		"response":     body.Response,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAuthorizationPending(w http.ResponseWriter, r *http.Request) {
	pending := s.authz.GetPending()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"pending_authorizations": pending,
		"count":                  len(pending),
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
	})
}

type authorizationCancelBody struct {
	ToolCallID string `json:"tool_call_id"`
}

func (s *Server) handleAuthorizationCancel(w http.ResponseWriter, r *http.Request) {
	var body authorizationCancelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.authz.Cancel(body.ToolCallID); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"tool_call_id": body.ToolCallID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
