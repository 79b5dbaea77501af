// Package planner holds the mention planner used when no model-backed planner is
// configured.
package planner

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
)

// phases reported by the router; kept as strings so the planner does not depend on it
const (
	phaseFailed     = "failed"
	phaseEscalate   = "escalate"
	phaseUnresolved = "unresolved"
)

// Mention routes "@token" or "@display name" at the start of the latest user
// message. Everything else goes to the fallback token. A failed remote call is
// retried, an escalated or unresolved one falls back, and any answer ends the turn.
type Mention struct {
	fallback string
}

var _ contractx.Planner = (*Mention)(nil)

func NewMention(fallback string) *Mention {
	return &Mention{fallback: strings.TrimSpace(fallback)}
}

func (m *Mention) Plan(_ context.Context, req contractx.PlannerRequest) (contractx.PlannerResponse, error) {
	if req.Hop == 0 {
		return contractx.PlannerResponse{Token: m.pick(req)}, nil
	}

	switch req.LastPhase {
	case phaseFailed:
		return contractx.PlannerResponse{Token: req.LastToken}, nil
	case phaseEscalate, phaseUnresolved:
		if req.LastToken == m.fallback {
			return contractx.PlannerResponse{Terminate: true}, nil
		}
		return contractx.PlannerResponse{Token: m.fallback}, nil
	default:
		return contractx.PlannerResponse{Terminate: true}, nil
	}
}

func (m *Mention) pick(req contractx.PlannerRequest) string {
	text := lastUser(req.Messages)
	if !strings.HasPrefix(text, "@") {
		return m.fallback
	}
	mention := strings.TrimPrefix(text, "@")

	// longest display name wins so "@Data Analyst Pro" beats "@Data Analyst"
	var (
		best    contractx.AgentDescriptor
		bestLen int
	)
	for _, d := range req.Agents {
		for _, name := range []string{registry.Token(d.AgentID), d.AgentID, d.Label()} {
			if name != "" && len(name) > bestLen && hasWordPrefix(mention, name) {
				best, bestLen = d, len(name)
			}
		}
	}
	if best.AgentID != "" {
		return registry.Token(best.AgentID)
	}

	// unknown mentions are passed through so the router can report them
	if fields := strings.Fields(mention); len(fields) > 0 {
		return fields[0]
	}
	return m.fallback
}

func hasWordPrefix(text, prefix string) bool {
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	rest := text[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, ":") || strings.HasPrefix(rest, ",")
}

func lastUser(msgs []contractx.PlainMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
