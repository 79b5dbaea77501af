package contract

import "time"

// AgentDescriptor identifies one remote expert agent. It is not modified after the
// agent is registered for a session.
type AgentDescriptor struct {
	AgentID     string `json:"agent_id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// Label is the name shown to users, falling back to the id.
func (d AgentDescriptor) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.AgentID
}

// Registration is one row of the registration feed supplied at session setup.
type Registration struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Desc    string `json:"desc"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
}

type PlainMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type InvokeRequest struct {
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id"`
	Messages  []PlainMessage `json:"messages"`
	UserID    string         `json:"user_id"`
}

type ResultKind string

const (
	ResultText  ResultKind = "text"
	ResultTool  ResultKind = "tool"
	ResultError ResultKind = "error"
)

// ExecutionResult is the outcome of one remote invocation attempt.
type ExecutionResult struct {
	Kind      ResultKind      `json:"kind"`
	Content   string          `json:"content"`
	Messages  []RemoteMessage `json:"messages,omitempty"`
	Final     bool            `json:"final"`
	Status    bool            `json:"status"`
	SessionID string          `json:"session_id"`
}

// RemoteMessage is one raw message returned by a remote agent, before normalization.
type RemoteMessage struct {
	ID         string         `json:"id,omitempty"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// FileDescriptor is one entry of a "files" tool payload. Field order is the wire
// order of the serialized arguments.
type FileDescriptor struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Date string `json:"date,omitempty"`
}

type WorkerRequest struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Messages  []PlainMessage `json:"messages"`
}

type WorkerResponse struct {
	Message string `json:"message"`
}

// PlannerRequest is the feedback a planner sees before each hop. LastToken and
// LastPhase describe the previous hop of the same turn and are empty on hop 0.
type PlannerRequest struct {
	SessionID    string            `json:"session_id"`
	Messages     []PlainMessage    `json:"messages"`
	Agents       []AgentDescriptor `json:"agents"`
	Builtins     []string          `json:"builtins"`
	FailureCount map[string]int    `json:"failure_count"`
	Threshold    int               `json:"threshold"`
	Hop          int               `json:"hop"`
	LastToken    string            `json:"last_token,omitempty"`
	LastPhase    string            `json:"last_phase,omitempty"`
	Now          time.Time         `json:"now"`
}

// PlannerResponse names the next routing token, or asks to end the turn.
type PlannerResponse struct {
	Token     string `json:"token,omitempty"`
	Terminate bool   `json:"terminate,omitempty"`
}
