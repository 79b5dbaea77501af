// Package worker holds the built-in local workers the router can answer with.
package worker

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
)

// TokenChat is the built-in token of the chat worker.
const TokenChat = "chat"

// Chat answers from the conversation history with a single chat model call.
type Chat struct {
	runner compose.Runnable[contract.WorkerRequest, contract.WorkerResponse]
}

var _ contract.Worker = (*Chat)(nil)

func NewChat(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Chat, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contract.ErrValidation)
	}
	runner, err := compileChatGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile chat worker graph: %v", contract.ErrWorkerFailed, err)
	}
	return &Chat{runner: runner}, nil
}

func (c *Chat) Run(ctx context.Context, req contract.WorkerRequest) (contract.WorkerResponse, error) {
	return c.runner.Invoke(ctx, req)
}

func compileChatGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[contract.WorkerRequest, contract.WorkerResponse], error) {
	graph := compose.NewGraph[contract.WorkerRequest, contract.WorkerResponse]()

	if err := graph.AddLambdaNode("prepare",
		compose.InvokableLambda(func(ctx context.Context, req contract.WorkerRequest) ([]*schema.Message, error) {
			return toSchemaMessages(systemPrompt, req.Messages)
		}),
	); err != nil {
		return nil, fmt.Errorf("add chat prepare node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add chat model node: %w", err)
	}
	if err := graph.AddLambdaNode("reply",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (contract.WorkerResponse, error) {
			if msg == nil || strings.TrimSpace(msg.Content) == "" {
				return contract.WorkerResponse{}, fmt.Errorf("%w: empty model reply", contract.ErrSchemaViolation)
			}
			return contract.WorkerResponse{Message: strings.TrimSpace(msg.Content)}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add chat reply node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prepare"},
		{"prepare", "model"},
		{"model", "reply"},
		{"reply", compose.END},
	}
	for _, e := range edges {
		if err := graph.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add chat edge %s->%s: %w", e[0], e[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("worker.chat_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile chat graph: %w", err)
	}
	return runner, nil
}

func toSchemaMessages(systemPrompt string, history []contract.PlainMessage) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(history)+1)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		out = append(out, schema.SystemMessage(s))
	}

	var hasUser bool
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case "user":
			hasUser = true
			out = append(out, schema.UserMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		default:
			// tool results are summarized as assistant text; the model never saw the call
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	if !hasUser {
		return nil, fmt.Errorf("%w: no user message in history", contract.ErrValidation)
	}
	return out, nil
}
