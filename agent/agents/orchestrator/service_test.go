package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/agents/planner"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/route"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

type fakeStore struct {
	mu        sync.Mutex
	loadState *statex.RoutingState
	loadErr   error
	saveErr   error
	saved     []statex.RoutingState
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (statex.RoutingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return statex.RoutingState{}, f.loadErr
	}
	if f.loadState == nil {
		return statex.RoutingState{}, statex.ErrStateNotFound
	}
	return f.loadState.Clone(), nil
}

func (f *fakeStore) Save(ctx context.Context, st statex.RoutingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, st.Clone())
	cp := st.Clone()
	f.loadState = &cp
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadState = nil
	return nil
}

type fakeInvoker struct {
	mu     sync.Mutex
	result contractx.ExecutionResult
	err    error
	calls  int
}

func (f *fakeInvoker) Invoke(ctx context.Context, req contractx.InvokeRequest) (contractx.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return contractx.ExecutionResult{}, f.err
	}
	res := f.result
	res.SessionID = req.SessionID
	return res, nil
}

type fakeWorker struct {
	reply string
}

func (f fakeWorker) Run(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerResponse, error) {
	return contractx.WorkerResponse{Message: f.reply}, nil
}

type fakeFeed struct {
	rows []contractx.Registration
	err  error
}

func (f fakeFeed) Registrations(ctx context.Context, sessionID, userID string) ([]contractx.Registration, error) {
	return f.rows, f.err
}

type fakeSink struct {
	mu       sync.Mutex
	err      error
	payloads [][]byte
}

func (f *fakeSink) Publish(ctx context.Context, sessionID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

var analystFeed = fakeFeed{rows: []contractx.Registration{
	{AgentID: "agent_001", Name: "数据分析师", Desc: "sales analysis", UserID: "u1", Kind: "expert"},
}}

func newTestOrchestrator(
	t *testing.T,
	store statex.Store,
	inv contractx.Invoker,
	opts ...Option,
) *Orchestrator {
	t.Helper()

	agents := registry.NewStore()
	router := route.New(route.Config{FailureThreshold: 3, CallTimeout: time.Second}, inv,
		route.WithWorker("chat", fakeWorker{reply: "local answer"}),
		route.WithRegistryStore(agents))

	opts = append([]Option{WithRegistryStore(agents)}, opts...)
	o, err := New(store, planner.NewMention("chat"), router, Config{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return o
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fakeStore{}, &fakeInvoker{})

	_, err := o.HandleMessage(context.Background(), " ", "u1", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), "session-1", "u1", "  ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandleMessageRoutesToRemoteAgent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	inv := &fakeInvoker{result: contractx.ExecutionResult{Kind: contractx.ResultText, Content: "ok", Status: true, Final: true}}
	sink := &fakeSink{}
	o := newTestOrchestrator(t, store, inv, WithFeed(analystFeed), WithSink(sink))

	out, err := o.HandleMessage(context.Background(), "session-1", "u1", "@数据分析师 how did sales do?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if out.Reply != "ok" {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if inv.calls != 1 {
		t.Fatalf("expected one remote call, got %d", inv.calls)
	}
	if len(out.Outcomes) != 1 || out.Outcomes[0].Phase != route.PhaseSuccess {
		t.Fatalf("unexpected outcomes: %#v", out.Outcomes)
	}
	if out.FailureCount["agent_001"] != 0 {
		t.Fatalf("unexpected failure count: %#v", out.FailureCount)
	}
	if len(out.Messages) != 2 || out.Messages[0].Role != message.RoleHuman {
		t.Fatalf("unexpected turn messages: %#v", out.Messages)
	}

	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}
	saved := store.saved[0]
	if saved.UserID != "u1" || saved.Version != 2 {
		t.Fatalf("unexpected saved state: user=%q version=%d", saved.UserID, saved.Version)
	}
	if _, ok := saved.Registry.Lookup("a2a_agent_001"); !ok {
		t.Fatal("saved registry is missing agent_001")
	}

	if len(sink.payloads) != 1 {
		t.Fatalf("expected one published payload, got %d", len(sink.payloads))
	}
	var wire []map[string]any
	if err := json.Unmarshal(sink.payloads[0], &wire); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(wire) != 2 || wire[1]["content"] != "ok" || wire[1]["role"] != "ai" {
		t.Fatalf("unexpected wire payload: %s", sink.payloads[0])
	}
}

func TestHandleMessageEscalatesAndFallsBack(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	inv := &fakeInvoker{err: errors.New("connection refused")}
	o := newTestOrchestrator(t, store, inv, WithFeed(analystFeed))

	out, err := o.HandleMessage(context.Background(), "session-2", "u1", "@a2a_agent_001 report please")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	var phases []route.Phase
	for _, oc := range out.Outcomes {
		phases = append(phases, oc.Phase)
	}
	want := []route.Phase{route.PhaseFailed, route.PhaseFailed, route.PhaseEscalate, route.PhaseLocal}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	if inv.calls != 3 {
		t.Fatalf("expected 3 remote calls, got %d", inv.calls)
	}
	if out.FailureCount["agent_001"] != 3 {
		t.Fatalf("unexpected failure count: %#v", out.FailureCount)
	}
	if out.Reply != "local answer" {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}

	var escalation string
	for _, m := range out.Messages {
		if strings.Contains(m.Content, "Falling back automatically") {
			escalation = m.Content
		}
	}
	if !strings.Contains(escalation, "数据分析师") || !strings.Contains(escalation, "connection refused") {
		t.Fatalf("unexpected escalation message: %q", escalation)
	}

	// a new turn gives the agent one fresh attempt; it still fails and escalates
	out, err = o.HandleMessage(context.Background(), "session-2", "u1", "@a2a_agent_001 try again")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if inv.calls != 4 {
		t.Fatalf("expected exactly one more remote call, got %d", inv.calls)
	}
	phases = phases[:0]
	for _, oc := range out.Outcomes {
		phases = append(phases, oc.Phase)
	}
	want = []route.Phase{route.PhaseEscalate, route.PhaseLocal}
	if fmt.Sprint(phases) != fmt.Sprint(want) || out.Reply != "local answer" {
		t.Fatalf("second turn phases = %v reply=%q, want %v", phases, out.Reply, want)
	}
	if out.FailureCount["agent_001"] != 4 {
		t.Fatalf("unexpected failure count: %#v", out.FailureCount)
	}
}

func TestHandleMessageEscalatedAgentRecoversNextTurn(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	inv := &fakeInvoker{err: errors.New("connection refused")}
	o := newTestOrchestrator(t, store, inv, WithFeed(analystFeed))

	out, err := o.HandleMessage(context.Background(), "session-r", "u1", "@a2a_agent_001 report please")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if inv.calls != 3 || out.FailureCount["agent_001"] != 3 {
		t.Fatalf("first turn: calls=%d failure_count=%#v", inv.calls, out.FailureCount)
	}

	inv.mu.Lock()
	inv.err = nil
	inv.result = contractx.ExecutionResult{Kind: contractx.ResultText, Content: "back online", Status: true, Final: true}
	inv.mu.Unlock()

	out, err = o.HandleMessage(context.Background(), "session-r", "u1", "@a2a_agent_001 report please")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if inv.calls != 4 {
		t.Fatalf("expected the agent to be called again, got %d calls", inv.calls)
	}
	if len(out.Outcomes) != 1 || out.Outcomes[0].Phase != route.PhaseSuccess {
		t.Fatalf("unexpected outcomes: %#v", out.Outcomes)
	}
	if out.Reply != "back online" {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.FailureCount["agent_001"] != 0 {
		t.Fatalf("failure count not reset: %#v", out.FailureCount)
	}
}

func TestHandleMessageWithoutFeedReportsUnresolved(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fakeStore{}, &fakeInvoker{},
		WithFeed(fakeFeed{err: fmt.Errorf("%w: db down", contractx.ErrFeedUnavailable)}))

	out, err := o.HandleMessage(context.Background(), "session-3", "u1", "@a2a_agent_001 hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(out.Outcomes) != 2 || out.Outcomes[0].Phase != route.PhaseUnresolved || out.Outcomes[1].Phase != route.PhaseLocal {
		t.Fatalf("unexpected outcomes: %#v", out.Outcomes)
	}
	if !strings.Contains(out.Messages[1].Content, "No remote agents are registered") {
		t.Fatalf("unexpected routing failure message: %q", out.Messages[1].Content)
	}
	if len(out.FailureCount) != 0 {
		t.Fatalf("unexpected failure count: %#v", out.FailureCount)
	}
}

func TestHandleMessageSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("redis down")
	o := newTestOrchestrator(t, &fakeStore{saveErr: saveErr}, &fakeInvoker{})

	_, err := o.HandleMessage(context.Background(), "session-4", "u1", "hello")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
}

func TestHandleMessageLoadErrorPropagates(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("redis timeout")
	o := newTestOrchestrator(t, &fakeStore{loadErr: loadErr}, &fakeInvoker{})

	_, err := o.HandleMessage(context.Background(), "session-5", "u1", "hello")
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestHandleMessageSinkErrorPropagates(t *testing.T) {
	t.Parallel()

	sinkErr := errors.New("qstash unauthorized")
	o := newTestOrchestrator(t, &fakeStore{}, &fakeInvoker{}, WithSink(&fakeSink{err: sinkErr}))

	_, err := o.HandleMessage(context.Background(), "session-6", "u1", "hello")
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestHandleMessageSerializesTurnsPerSession(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newTestOrchestrator(t, store, &fakeInvoker{})

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := o.HandleMessage(context.Background(), "shared", "u1", fmt.Sprintf("turn %d", i)); err != nil {
				t.Errorf("HandleMessage() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	st, err := store.Load(context.Background(), "shared")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(st.History) != 2*turns {
		t.Fatalf("history length = %d, want %d", len(st.History), 2*turns)
	}
	if st.Version != turns+1 {
		t.Fatalf("version = %d, want %d", st.Version, turns+1)
	}
}

func TestEndSessionForgetsState(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	regs := registry.NewStore()
	o := newTestOrchestrator(t, store, &fakeInvoker{}, WithFeed(analystFeed), WithRegistryStore(regs))

	if _, err := o.HandleMessage(context.Background(), "session-7", "u1", "hello"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if regs.Snapshot("session-7").Len() != 1 {
		t.Fatal("registry was not populated")
	}

	if err := o.EndSession(context.Background(), "session-7"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if regs.Snapshot("session-7").Len() != 0 {
		t.Fatal("registry was not forgotten")
	}
	if _, err := store.Load(context.Background(), "session-7"); !errors.Is(err, statex.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}
