package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

func ValidateAndSaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Session.Touch(in.Now)
	in.Session.Version++
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}

	return in, nil
}
