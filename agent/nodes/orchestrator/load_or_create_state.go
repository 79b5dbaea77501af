package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewRoutingState(in.SessionID, in.UserID, in.Now)
	default:
		return nil, fmt.Errorf("load routing state: %w", err)
	}

	if in.UserID != "" {
		st.UserID = in.UserID
	}
	in.UserID = st.UserID
	in.Session = st
	in.Start = len(st.History)
	return in, nil
}
