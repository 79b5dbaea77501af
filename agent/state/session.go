package state

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
)

// RoutingState is the per-session routing record. A routing step takes a state and
// returns a new one; callers merge by replacing their copy.
// - FailureCount: consecutive failures per agent id, reset on success
// - RouteToAgent: the decision in flight, empty when idle
type RoutingState struct {
	// Identity
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	Registry     registry.Registry         `json:"registry"`
	FailureCount map[string]int            `json:"failure_count,omitempty"`
	RouteToAgent string                    `json:"route_to_agent,omitempty"`
	LastResult   *contract.ExecutionResult `json:"last_result,omitempty"`
	History      message.History           `json:"history,omitempty"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	// agents escalated during the current turn; not persisted
	escalated map[string]struct{}
}

var (
	ErrNegativeFailureCount = errors.New("failure count is negative")
	ErrUnknownRoute         = errors.New("route token is not resolvable")
)

func NewRoutingState(sessionID, userID string, now time.Time) RoutingState {
	return RoutingState{
		SessionID:    sessionID,
		UserID:       userID,
		FailureCount: make(map[string]int, 4),
		Version:      1,
		UpdatedAt:    now.UTC(),
	}
}

// Clone copies everything a routing step may write to.
func (s RoutingState) Clone() RoutingState {
	out := s
	out.FailureCount = maps.Clone(s.FailureCount)
	if out.FailureCount == nil {
		out.FailureCount = make(map[string]int, 4)
	}
	out.History = append(message.History(nil), s.History...)
	out.escalated = maps.Clone(s.escalated)
	if s.LastResult != nil {
		res := *s.LastResult
		res.Messages = append([]contract.RemoteMessage(nil), s.LastResult.Messages...)
		out.LastResult = &res
	}
	return out
}

func (s *RoutingState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s RoutingState) Failures(agentID string) int {
	return s.FailureCount[agentID]
}

// RecordFailure increments the agent's consecutive failure count and returns it.
func (s *RoutingState) RecordFailure(agentID string) int {
	if s.FailureCount == nil {
		s.FailureCount = make(map[string]int, 4)
	}
	s.FailureCount[agentID]++
	return s.FailureCount[agentID]
}

func (s *RoutingState) ResetFailures(agentID string) {
	if s.FailureCount == nil {
		s.FailureCount = make(map[string]int, 4)
	}
	s.FailureCount[agentID] = 0
}

// BeginTurn forgets the escalations of the previous turn. An agent at or over the
// failure threshold gets one fresh attempt per turn; failure counts are kept.
func (s *RoutingState) BeginTurn() {
	s.escalated = nil
}

func (s *RoutingState) MarkEscalated(agentID string) {
	if s.escalated == nil {
		s.escalated = make(map[string]struct{}, 2)
	}
	s.escalated[agentID] = struct{}{}
}

func (s RoutingState) EscalatedThisTurn(agentID string) bool {
	_, ok := s.escalated[agentID]
	return ok
}

func (s *RoutingState) Route(token string) {
	s.RouteToAgent = token
}

func (s *RoutingState) ClearRoute() {
	s.RouteToAgent = ""
}

func (s *RoutingState) Append(msgs ...message.Message) {
	s.History = s.History.Append(msgs...)
}

// FailureSnapshot returns a copy safe to hand to the planner.
func (s RoutingState) FailureSnapshot() map[string]int {
	out := maps.Clone(s.FailureCount)
	if out == nil {
		out = map[string]int{}
	}
	return out
}

func (s RoutingState) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for id, n := range s.FailureCount {
		if n < 0 {
			return fmt.Errorf("%w: agent_id=%s count=%d", ErrNegativeFailureCount, id, n)
		}
	}
	if s.RouteToAgent != "" && registry.IsToken(s.RouteToAgent) {
		if _, ok := s.Registry.Lookup(s.RouteToAgent); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRoute, s.RouteToAgent)
		}
	}
	return nil
}
