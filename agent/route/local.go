package route

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

// runLocal answers with a built-in worker. Worker errors are reported in the
// history but do not touch the failure counts, which only track remote agents.
func (e *Executor) runLocal(ctx context.Context, next state.RoutingState, out Outcome, w contract.Worker) (state.RoutingState, Outcome) {
	out.Phase = PhaseLocal

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := runWorker(runCtx, w, contract.WorkerRequest{
		SessionID: next.SessionID,
		UserID:    next.UserID,
		Messages:  next.History.Plain(),
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", next.SessionID).Str("token", out.Token).Msg("route: built-in worker failed")
		text := fmt.Sprintf("The built-in assistant %q could not answer: %v", out.Token, err)
		e.finish(&next, &out, message.AI(uuid.NewString(), text))
		return next, out
	}

	res := contract.ExecutionResult{
		Kind:      contract.ResultText,
		Content:   resp.Message,
		Final:     true,
		Status:    true,
		SessionID: next.SessionID,
	}
	next.LastResult = &res
	scope := fmt.Sprintf("%s/%d", next.SessionID, len(next.History))
	e.finish(&next, &out, e.normalizer.Normalize(scope, res)...)
	return next, out
}

func runWorker(ctx context.Context, w contract.Worker, req contract.WorkerRequest) (resp contract.WorkerResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", contract.ErrWorkerFailed, r)
		}
	}()
	resp, err = w.Run(ctx, req)
	if err != nil {
		return contract.WorkerResponse{}, fmt.Errorf("%w: %w", contract.ErrWorkerFailed, err)
	}
	return resp, nil
}
