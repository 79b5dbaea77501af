// Package registry maps routing tokens to the remote expert agents registered for a
// session.
package registry

import (
	"strings"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
)

// TokenPrefix keeps remote agent tokens apart from built-in worker names.
const TokenPrefix = "a2a_"

func Token(agentID string) string {
	return TokenPrefix + agentID
}

// IsToken reports whether token is in the remote agent namespace.
func IsToken(token string) bool {
	return strings.HasPrefix(token, TokenPrefix) && len(token) > len(TokenPrefix)
}

// Registry is an immutable snapshot of one session's agents in registration order.
type Registry struct {
	Agents []contract.AgentDescriptor `json:"agents,omitempty"`

	index map[string]int
}

// Build creates a registry from descriptors. Blank ids are skipped; a repeated id
// keeps its first position and its last descriptor.
func Build(descriptors []contract.AgentDescriptor) Registry {
	r := Registry{
		Agents: make([]contract.AgentDescriptor, 0, len(descriptors)),
		index:  make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		d.AgentID = strings.TrimSpace(d.AgentID)
		if d.AgentID == "" {
			continue
		}
		tok := Token(d.AgentID)
		if i, ok := r.index[tok]; ok {
			r.Agents[i] = d
			continue
		}
		r.index[tok] = len(r.Agents)
		r.Agents = append(r.Agents, d)
	}
	return r
}

func FromRegistrations(rows []contract.Registration) Registry {
	descriptors := make([]contract.AgentDescriptor, 0, len(rows))
	for _, row := range rows {
		descriptors = append(descriptors, contract.AgentDescriptor{
			AgentID:     row.AgentID,
			DisplayName: strings.TrimSpace(row.Name),
			Description: strings.TrimSpace(row.Desc),
			OwnerID:     row.UserID,
			Kind:        row.Kind,
		})
	}
	return Build(descriptors)
}

// Lookup never fails; an unknown token reports false.
func (r Registry) Lookup(token string) (contract.AgentDescriptor, bool) {
	if r.index != nil {
		i, ok := r.index[token]
		if !ok {
			return contract.AgentDescriptor{}, false
		}
		return r.Agents[i], true
	}
	for _, d := range r.Agents {
		if Token(d.AgentID) == token {
			return d, true
		}
	}
	return contract.AgentDescriptor{}, false
}

func (r Registry) Len() int {
	return len(r.Agents)
}

func (r Registry) Tokens() []string {
	out := make([]string, 0, len(r.Agents))
	for _, d := range r.Agents {
		out = append(out, Token(d.AgentID))
	}
	return out
}

// Descriptors returns a copy of the agents in registration order.
func (r Registry) Descriptors() []contract.AgentDescriptor {
	return append([]contract.AgentDescriptor(nil), r.Agents...)
}

// Except returns the agents other than agentID, used to suggest alternatives.
func (r Registry) Except(agentID string) []contract.AgentDescriptor {
	out := make([]contract.AgentDescriptor, 0, len(r.Agents))
	for _, d := range r.Agents {
		if d.AgentID != agentID {
			out = append(out, d)
		}
	}
	return out
}
