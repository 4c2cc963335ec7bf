// Package event defines the wire-format sum type streamed to clients over
// SSE (spec §3). Event names are nominal SCREAMING_SNAKE_CASE, generalized
// from the teacher's AG-UI protobuf event builders (pkg/agui/events.go) into
// a plain, externally-tagged JSON shape: {"type": "...", ...fields}.
package event

import "time"

type Type string

const (
	TypeRunStarted               Type = "RUN_STARTED"
	TypeTextMessageStart         Type = "TEXT_MESSAGE_START"
	TypeTextMessageContent       Type = "TEXT_MESSAGE_CONTENT"
	TypeTextMessageEnd           Type = "TEXT_MESSAGE_END"
	TypeToolCallStart            Type = "TOOL_CALL_START"
	TypeToolCallArgs             Type = "TOOL_CALL_ARGS"
	TypeToolCallEnd              Type = "TOOL_CALL_END"
	TypeToolAuthorizationRequest Type = "TOOL_AUTHORIZATION_REQUEST"
	TypeToolAuthorizationReply   Type = "TOOL_AUTHORIZATION_RESPONSE"
	TypeAuthorizationStatus      Type = "AUTHORIZATION_STATUS"
	TypeRunFinished              Type = "RUN_FINISHED"
	TypeRunError                 Type = "RUN_ERROR"
	TypeSnapshot                 Type = "STATE_SNAPSHOT"
)

// Event is a single frame of the streamed sequence. Only the fields
// relevant to Type are populated; the rest are omitted from JSON.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ThreadID string `json:"thread_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`

	MessageID string `json:"message_id,omitempty"`
	Delta     string `json:"delta,omitempty"`

	ToolCallID      string `json:"tool_call_id,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	ParentMessageID string `json:"parent_message_id,omitempty"`

	Description     string         `json:"description,omitempty"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	AuthorizationID string         `json:"authorization_id,omitempty"`
	Decision        string         `json:"decision,omitempty"`
	Status          string         `json:"status,omitempty"`

	Message string `json:"message,omitempty"`

	Snapshot any `json:"snapshot,omitempty"`
}

// now is a var so tests can freeze it; production uses time.Now.
var now = time.Now

// RunStarted builds a RUN_STARTED event.
func RunStarted(threadID, runID string) Event {
	return Event{Type: TypeRunStarted, Timestamp: now(), ThreadID: threadID, RunID: runID}
}

// TextMessageStart builds a TEXT_MESSAGE_START event.
func TextMessageStart(messageID string) Event {
	return Event{Type: TypeTextMessageStart, Timestamp: now(), MessageID: messageID}
}

// TextMessageContent builds a TEXT_MESSAGE_CONTENT event carrying one delta.
func TextMessageContent(messageID, delta string) Event {
	return Event{Type: TypeTextMessageContent, Timestamp: now(), MessageID: messageID, Delta: delta}
}

// TextMessageEnd builds a TEXT_MESSAGE_END event.
func TextMessageEnd(messageID string) Event {
	return Event{Type: TypeTextMessageEnd, Timestamp: now(), MessageID: messageID}
}

// ToolCallStart builds a TOOL_CALL_START event.
func ToolCallStart(toolCallID, toolName, parentMessageID string) Event {
	return Event{
		Type: TypeToolCallStart, Timestamp: now(),
		ToolCallID: toolCallID, ToolName: toolName, ParentMessageID: parentMessageID,
	}
}

// ToolCallArgs builds a TOOL_CALL_ARGS event.
func ToolCallArgs(toolCallID, delta string) Event {
	return Event{Type: TypeToolCallArgs, Timestamp: now(), ToolCallID: toolCallID, Delta: delta}
}

// ToolCallEnd builds a TOOL_CALL_END event.
func ToolCallEnd(toolCallID string) Event {
	return Event{Type: TypeToolCallEnd, Timestamp: now(), ToolCallID: toolCallID}
}

// ToolAuthorizationRequest builds a TOOL_AUTHORIZATION_REQUEST event.
func ToolAuthorizationRequest(toolCallID, toolName, description string, args map[string]any) Event {
	return Event{
		Type: TypeToolAuthorizationRequest, Timestamp: now(),
		ToolCallID: toolCallID, ToolName: toolName, Description: description, Arguments: args,
	}
}

// ToolAuthorizationResponse builds a TOOL_AUTHORIZATION_RESPONSE event.
func ToolAuthorizationResponse(toolCallID, decision string) Event {
	return Event{Type: TypeToolAuthorizationReply, Timestamp: now(), ToolCallID: toolCallID, Decision: decision}
}

// AuthorizationStatus builds an AUTHORIZATION_STATUS event.
func AuthorizationStatus(toolCallID, status string) Event {
	return Event{Type: TypeAuthorizationStatus, Timestamp: now(), ToolCallID: toolCallID, Status: status}
}

// RunFinished builds a RUN_FINISHED event.
func RunFinished(threadID, runID string) Event {
	return Event{Type: TypeRunFinished, Timestamp: now(), ThreadID: threadID, RunID: runID}
}

// RunErrorEvent builds a RUN_ERROR event.
func RunErrorEvent(message string) Event {
	return Event{Type: TypeRunError, Timestamp: now(), Message: message}
}
