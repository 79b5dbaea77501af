// Package route resolves a routing token to a built-in worker or a registered remote
// agent, calls it under the failure-count policy and folds the result back into the
// session history.
package route

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/normalize"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/prompt"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/state"
	logx "github.com/tanpawarit/Chative-Agent-Routing/pkg/logger"
	"github.com/tanpawarit/Chative-Agent-Routing/pkg/serialize"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRouted     Phase = "routed"
	PhaseInvoking   Phase = "invoking"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
	PhaseEscalate   Phase = "escalate"
	PhaseUnresolved Phase = "unresolved"
	PhaseLocal      Phase = "local"
)

// Outcome reports how one routing step ended. Fault is set for PhaseFailed and for
// PhaseEscalate when the escalation followed a failed call.
type Outcome struct {
	Phase    Phase             `json:"phase"`
	Token    string            `json:"token"`
	AgentID  string            `json:"agent_id,omitempty"`
	Fault    *contract.Fault   `json:"fault,omitempty"`
	Appended []message.Message `json:"appended,omitempty"`
}

type Option func(*Executor)

// WithWorker registers a built-in worker under a fixed token.
func WithWorker(token string, w contract.Worker) Option {
	return func(e *Executor) {
		token = strings.TrimSpace(token)
		if token != "" && w != nil {
			e.workers[token] = w
		}
	}
}

func WithKeepAlive(fn contract.KeepAlive) Option {
	return func(e *Executor) {
		e.keepAlive = fn
	}
}

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Executor) {
		if n != nil {
			e.normalizer = n
		}
	}
}

func WithPrompts(p prompt.Set) Option {
	return func(e *Executor) {
		e.prompts = p
	}
}

// WithRegistryStore resolves tokens through the shared per-session registry
// instead of the snapshot carried in the routing state.
func WithRegistryStore(store *registry.Store) Option {
	return func(e *Executor) {
		e.registry = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

type Executor struct {
	cfg        Config
	invoker    contract.Invoker
	workers    map[string]contract.Worker
	normalizer *normalize.Normalizer
	prompts    prompt.Set
	keepAlive  contract.KeepAlive
	registry   *registry.Store
	now        func() time.Time
}

func New(cfg Config, invoker contract.Invoker, opts ...Option) *Executor {
	e := &Executor{
		cfg:        cfg.withDefaults(),
		invoker:    invoker,
		workers:    make(map[string]contract.Worker, 2),
		normalizer: normalize.New(),
		now:        time.Now,
	}
	if p, err := prompt.Load(); err == nil {
		e.prompts = p
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// BuiltinTokens returns the registered worker tokens, sorted.
func (e *Executor) BuiltinTokens() []string {
	out := make([]string, 0, len(e.workers))
	for token := range e.workers {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

func (e *Executor) Threshold() int {
	return e.cfg.FailureThreshold
}

// Execute runs one routing decision against a copy of st and returns the new state.
// Remote and lookup failures end up in the returned history and Outcome, never as a
// panic or error.
func (e *Executor) Execute(ctx context.Context, st state.RoutingState, token string) (state.RoutingState, Outcome) {
	next := st.Clone()
	token = strings.TrimSpace(token)
	next.Route(token)
	out := Outcome{Phase: PhaseRouted, Token: token}

	logger := logx.Component("route").With().Str("session_id", next.SessionID).Str("token", token).Logger()
	logger.Debug().Msg("route: decision received")

	if w, ok := e.workers[token]; ok {
		return e.runLocal(ctx, next, out, w)
	}

	desc, ok := e.lookup(next, token)
	if !ok {
		text := e.prompts.Unresolved(prompt.UnresolvedData{Token: token, Agents: agentLabels(next.Registry.Descriptors())})
		out.Phase = PhaseUnresolved
		e.finish(&next, &out, message.AI(uuid.NewString(), text))
		logger.Info().Int("registered", next.Registry.Len()).Msg("route: token not resolvable")
		return next, out
	}

	out.AgentID = desc.AgentID
	logger = logger.With().Str("agent_id", desc.AgentID).Logger()

	if n := next.Failures(desc.AgentID); n >= e.cfg.FailureThreshold && next.EscalatedThisTurn(desc.AgentID) {
		text := e.prompts.Escalate(prompt.EscalateData{
			Agent:        desc.Label(),
			Reason:       "skipped without a new attempt",
			Attempts:     n,
			Alternatives: e.alternatives(next, desc.AgentID),
		})
		out.Phase = PhaseEscalate
		e.finish(&next, &out, message.AI(uuid.NewString(), text))
		logger.Warn().Int("failure_count", n).Msg("route: agent already escalated this turn, not calling")
		return next, out
	}

	out.Phase = PhaseInvoking
	res, fault := e.invoke(ctx, next, desc)
	next.LastResult = &res

	if fault == nil {
		next.ResetFailures(desc.AgentID)
		scope := fmt.Sprintf("%s/%d", next.SessionID, len(next.History))
		out.Phase = PhaseSuccess
		e.finish(&next, &out, e.normalizer.Normalize(scope, res)...)
		logger.Debug().Int("appended", len(out.Appended)).Msg("route: remote call succeeded")
		return next, out
	}

	count := next.RecordFailure(desc.AgentID)
	out.Fault = fault

	var text string
	if count >= e.cfg.FailureThreshold {
		out.Phase = PhaseEscalate
		next.MarkEscalated(desc.AgentID)
		text = e.prompts.Escalate(prompt.EscalateData{
			Agent:        desc.Label(),
			Reason:       fault.Summary(),
			Attempts:     count,
			Alternatives: e.alternatives(next, desc.AgentID),
		})
	} else {
		out.Phase = PhaseFailed
		text = e.prompts.Retry(prompt.RetryData{
			Agent:     desc.Label(),
			Reason:    fault.Summary(),
			Attempt:   count,
			Threshold: e.cfg.FailureThreshold,
		})
	}
	e.finish(&next, &out, message.AI(uuid.NewString(), text))

	logger.Warn().
		Str("error_code", fault.Code).
		Int("failure_count", count).
		Str("phase", string(out.Phase)).
		Msg(fault.Error())
	return next, out
}

func (e *Executor) lookup(st state.RoutingState, token string) (contract.AgentDescriptor, bool) {
	if e.registry != nil {
		return e.registry.Lookup(st.SessionID, token)
	}
	return st.Registry.Lookup(token)
}

func (e *Executor) finish(st *state.RoutingState, out *Outcome, msgs ...message.Message) {
	st.Append(msgs...)
	st.ClearRoute()
	st.Touch(e.now())
	out.Appended = msgs
}

type reply struct {
	res contract.ExecutionResult
	err error
}

// invoke performs the single remote call. The call is detached from the parent's
// cancellation and bounded by CallTimeout; keep-alive fires while it is outstanding.
func (e *Executor) invoke(ctx context.Context, st state.RoutingState, desc contract.AgentDescriptor) (contract.ExecutionResult, *contract.Fault) {
	req := contract.InvokeRequest{
		AgentID:   desc.AgentID,
		SessionID: st.SessionID,
		Messages:  st.History.Plain(),
		UserID:    st.UserID,
	}
	errResult := func(f *contract.Fault) (contract.ExecutionResult, *contract.Fault) {
		return contract.ExecutionResult{
			Kind:      contract.ResultError,
			Content:   f.Details,
			SessionID: st.SessionID,
		}, f
	}

	if e.invoker == nil {
		return errResult(e.unavailable(desc, st, "no remote invoker configured"))
	}

	log.Debug().
		Str("agent_id", desc.AgentID).
		Int("payload_bytes", len(serialize.SafeSerialize(req))).
		Msg("route: invoking remote agent")

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: panic: %v", contract.ErrInvoke, r)}
			}
		}()
		res, err := e.invoker.Invoke(callCtx, req)
		done <- reply{res: res, err: err}
	}()

	var tick <-chan time.Time
	if e.keepAlive != nil && e.cfg.KeepAliveInterval > 0 {
		ticker := time.NewTicker(e.cfg.KeepAliveInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	started := time.Now()
	for {
		select {
		case r := <-done:
			return e.classify(st, desc, r)
		case <-callCtx.Done():
			select {
			case r := <-done:
				return e.classify(st, desc, r)
			default:
			}
			return errResult(contract.NewTimeoutFault(agentType(desc), operation(desc), e.cfg.CallTimeout, e.now()))
		case <-tick:
			e.keepAlive(ctx, st.SessionID, desc.AgentID, time.Since(started))
		}
	}
}

func (e *Executor) classify(st state.RoutingState, desc contract.AgentDescriptor, r reply) (contract.ExecutionResult, *contract.Fault) {
	res := r.res
	if res.SessionID == "" {
		res.SessionID = st.SessionID
	}

	switch {
	case r.err != nil && errors.Is(r.err, context.DeadlineExceeded):
		f := contract.NewTimeoutFault(agentType(desc), operation(desc), e.cfg.CallTimeout, e.now())
		return errorResult(res, f), f
	case r.err != nil:
		f := e.unavailable(desc, st, r.err.Error())
		return errorResult(res, f), f
	case !res.Status:
		reason := strings.TrimSpace(res.Content)
		if reason == "" {
			reason = "agent reported failure"
		}
		f := e.unavailable(desc, st, reason)
		return errorResult(res, f), f
	default:
		return res, nil
	}
}

func errorResult(res contract.ExecutionResult, f *contract.Fault) contract.ExecutionResult {
	res.Kind = contract.ResultError
	res.Status = false
	if res.Content == "" {
		res.Content = f.Details
	}
	return res
}

func (e *Executor) unavailable(desc contract.AgentDescriptor, st state.RoutingState, reason string) *contract.Fault {
	var url string
	if ep, ok := e.invoker.(contract.Endpointer); ok {
		url = ep.Endpoint(desc.AgentID)
	}
	return contract.NewUnavailableFault(agentType(desc), url, reason, st.Failures(desc.AgentID), e.now())
}

// alternatives lists the other registered agents and the built-in workers.
func (e *Executor) alternatives(st state.RoutingState, agentID string) []string {
	out := agentLabels(st.Registry.Except(agentID))
	return append(out, e.BuiltinTokens()...)
}

func agentLabels(descs []contract.AgentDescriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Label())
	}
	return out
}

func agentType(desc contract.AgentDescriptor) string {
	if desc.Kind != "" {
		return desc.Kind
	}
	return "a2a"
}

func operation(desc contract.AgentDescriptor) string {
	return "invoke " + desc.AgentID
}
