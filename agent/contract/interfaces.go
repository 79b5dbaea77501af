package contract

import (
	"context"
	"time"
)

// Invoker calls one remote expert agent and returns its raw result. Implementations
// return an error for transport faults; a reachable agent that reports failure comes
// back as ExecutionResult.Status == false.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (ExecutionResult, error)
}

// Endpointer is implemented by invokers that can name the address they call.
type Endpointer interface {
	Endpoint(agentID string) string
}

// Worker is a built-in local specialist.
type Worker interface {
	Run(ctx context.Context, req WorkerRequest) (WorkerResponse, error)
}

type Planner interface {
	Plan(ctx context.Context, req PlannerRequest) (PlannerResponse, error)
}

type RegistrationFeed interface {
	Registrations(ctx context.Context, sessionID, userID string) ([]Registration, error)
}

// KeepAlive is called periodically while a remote call is outstanding.
type KeepAlive func(ctx context.Context, sessionID, agentID string, elapsed time.Duration)

// MessageSink receives messages appended during a turn, in wire form.
type MessageSink interface {
	Publish(ctx context.Context, sessionID string, payload []byte) error
}
