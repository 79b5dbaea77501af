package contract

import (
	"fmt"
	"time"
)

type FaultKind string

const (
	FaultTimeout     FaultKind = "timeout"
	FaultUnavailable FaultKind = "unavailable"
)

const (
	CodeTimeout     = "A2A_TIMEOUT"
	CodeUnavailable = "A2A_UNAVAILABLE"
)

// Fault describes why a remote call failed. Only the fields of its Kind are set:
// Duration and Operation for timeouts, ServiceURL, Reason and RetryCount for
// unavailable agents.
type Fault struct {
	Kind      FaultKind `json:"kind"`
	AgentType string    `json:"agent_type"`
	Code      string    `json:"error_code"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`

	Duration  time.Duration `json:"duration,omitempty"`
	Operation string        `json:"operation,omitempty"`

	ServiceURL string `json:"service_url,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}

func NewTimeoutFault(agentType, operation string, d time.Duration, now time.Time) *Fault {
	return &Fault{
		Kind:      FaultTimeout,
		AgentType: agentType,
		Code:      CodeTimeout,
		Details:   fmt.Sprintf("%s did not answer within %s", operation, d),
		Timestamp: now.UTC(),
		Duration:  d,
		Operation: operation,
	}
}

func NewUnavailableFault(agentType, serviceURL, reason string, retryCount int, now time.Time) *Fault {
	return &Fault{
		Kind:       FaultUnavailable,
		AgentType:  agentType,
		Code:       CodeUnavailable,
		Details:    fmt.Sprintf("agent unavailable: %s", reason),
		Timestamp:  now.UTC(),
		ServiceURL: serviceURL,
		Reason:     reason,
		RetryCount: retryCount,
	}
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case FaultTimeout:
		return fmt.Sprintf("%s: %s timed out after %s", f.Code, f.Operation, f.Duration)
	case FaultUnavailable:
		return fmt.Sprintf("%s: %s (url=%s retries=%d)", f.Code, f.Reason, f.ServiceURL, f.RetryCount)
	default:
		return fmt.Sprintf("%s: %s", f.Code, f.Details)
	}
}

// Summary is the short human readable reason used in conversation messages.
func (f *Fault) Summary() string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case FaultTimeout:
		return fmt.Sprintf("no answer within %s", f.Duration)
	case FaultUnavailable:
		return f.Reason
	default:
		return f.Details
	}
}
