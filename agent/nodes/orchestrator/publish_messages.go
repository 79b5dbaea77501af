package orchestratornode

import (
	"context"
	"encoding/json"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
)

// PublishMessages sends the turn's new messages, in wire form, to the sink.
func PublishMessages(ctx context.Context, in *GraphState, sink contractx.MessageSink) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if sink == nil {
		return in, nil
	}

	appended := in.Session.History.Since(in.Start)
	if len(appended) == 0 {
		return in, nil
	}

	payload, err := json.Marshal(message.ToWire(appended))
	if err != nil {
		return nil, fmt.Errorf("marshal wire messages: %w", err)
	}
	if err := sink.Publish(ctx, in.SessionID, payload); err != nil {
		return nil, fmt.Errorf("publish messages: %w", err)
	}
	return in, nil
}
