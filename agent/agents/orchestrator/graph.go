package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Agent-Routing/agent/nodes/orchestrator"
)

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_state: %w", err)
	}

	if err := graph.AddLambdaNode("refresh_registry",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RefreshRegistry(ctx, in, o.feed, o.registry)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node refresh_registry: %w", err)
	}

	if err := graph.AddLambdaNode("append_user_message",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AppendUserMessage(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_user_message: %w", err)
	}

	if err := graph.AddLambdaNode("route_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RouteTurn(ctx, in, o.planner, o.router, o.maxHops)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route_turn: %w", err)
	}

	if err := graph.AddLambdaNode("validate_and_save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_and_save_state: %w", err)
	}

	if err := graph.AddLambdaNode("publish_messages",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PublishMessages(ctx, in, o.sink)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node publish_messages: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_state"},
		{"load_or_create_state", "refresh_registry"},
		{"refresh_registry", "append_user_message"},
		{"append_user_message", "route_turn"},
		{"route_turn", "validate_and_save_state"},
		{"validate_and_save_state", "publish_messages"},
		{"publish_messages", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
