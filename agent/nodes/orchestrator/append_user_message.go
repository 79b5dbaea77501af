package orchestratornode

import (
	"fmt"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
)

func AppendUserMessage(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Session.Append(message.Human(uuid.NewString(), in.Text))
	in.Session.Touch(in.Now)
	return in, nil
}
