package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/route"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = statex.ErrInvalidSession
)

type GraphInput struct {
	SessionID string
	UserID    string
	Text      string
}

type GraphOutput struct {
	Reply        string
	Messages     []message.Message
	FailureCount map[string]int
	Outcomes     []route.Outcome
}

type GraphState struct {
	SessionID string
	UserID    string
	Text      string
	Now       time.Time

	Session statex.RoutingState
	// Start is the history length before this turn's human message.
	Start    int
	Outcomes []route.Outcome
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(in.UserID),
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
