package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	// Since(Start) includes the human message; the reply is the last AI text after it.
	appended := in.Session.History.Since(in.Start)
	var reply string
	for i := len(appended) - 1; i >= 0; i-- {
		if appended[i].Role == message.RoleAI && strings.TrimSpace(appended[i].Content) != "" {
			reply = appended[i].Content
			break
		}
	}

	return GraphOutput{
		Reply:        reply,
		Messages:     appended,
		FailureCount: in.Session.FailureSnapshot(),
		Outcomes:     in.Outcomes,
	}, nil
}
