package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
)

// RefreshRegistry re-registers the session's agents from the feed. A missing or
// failing feed leaves only the built-in workers routable.
func RefreshRegistry(
	ctx context.Context,
	in *GraphState,
	feed contractx.RegistrationFeed,
	store *registry.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var rows []contractx.Registration
	if feed != nil {
		var err error
		rows, err = feed.Registrations(ctx, in.SessionID, in.UserID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", in.SessionID).Msg("registry: feed unavailable, continuing with built-in workers only")
			rows = nil
		}
	}

	in.Session.Registry = store.Register(in.SessionID, registry.FromRegistrations(rows).Descriptors())
	return in, nil
}
