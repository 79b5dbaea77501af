package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/route"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

// Router runs one routing decision. *route.Executor implements it.
type Router interface {
	Execute(ctx context.Context, st statex.RoutingState, token string) (statex.RoutingState, route.Outcome)
	BuiltinTokens() []string
	Threshold() int
}

// RouteTurn asks the planner for a token and executes it until the planner ends the
// turn or maxHops decisions have run. Decisions are strictly sequential.
func RouteTurn(
	ctx context.Context,
	in *GraphState,
	planner contractx.Planner,
	router Router,
	maxHops int,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Session.BeginTurn()

	var last route.Outcome
	for hop := 0; hop < maxHops; hop++ {
		plan, err := planner.Plan(ctx, contractx.PlannerRequest{
			SessionID:    in.SessionID,
			Messages:     in.Session.History.Plain(),
			Agents:       in.Session.Registry.Descriptors(),
			Builtins:     router.BuiltinTokens(),
			FailureCount: in.Session.FailureSnapshot(),
			Threshold:    router.Threshold(),
			Hop:          hop,
			LastToken:    last.Token,
			LastPhase:    string(last.Phase),
			Now:          in.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("plan hop %d: %w", hop, err)
		}
		if plan.Terminate || plan.Token == "" {
			break
		}

		in.Session, last = router.Execute(ctx, in.Session, plan.Token)
		in.Outcomes = append(in.Outcomes, last)

		log.Debug().
			Str("session_id", in.SessionID).
			Int("hop", hop).
			Str("token", last.Token).
			Str("phase", string(last.Phase)).
			Msg("orchestrator: hop finished")
	}
	return in, nil
}
