package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/puzpuzpuz/xsync/v3"

	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	nodex "github.com/tanpawarit/Chative-Agent-Routing/agent/nodes/orchestrator"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

const defaultMaxHops = 5

type Config struct {
	MaxHops int `split_words:"true" default:"5"`
}

type Option func(*Orchestrator)

func WithFeed(feed contractx.RegistrationFeed) Option {
	return func(o *Orchestrator) {
		o.feed = feed
	}
}

func WithSink(sink contractx.MessageSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func WithRegistryStore(store *registry.Store) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.registry = store
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// TurnOutput is what the caller and the planner get back from one turn.
type TurnOutput = nodex.GraphOutput

type Orchestrator struct {
	store    statex.Store
	planner  contractx.Planner
	router   nodex.Router
	feed     contractx.RegistrationFeed
	sink     contractx.MessageSink
	registry *registry.Store

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	// one turn at a time per session
	locks   *xsync.MapOf[string, *sync.Mutex]
	maxHops int

	now func() time.Time
}

func New(
	store statex.Store,
	planner contractx.Planner,
	router nodex.Router,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}

	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	o := &Orchestrator{
		store:    store,
		planner:  planner,
		router:   router,
		registry: registry.NewStore(),
		locks:    xsync.NewMapOf[string, *sync.Mutex](),
		maxHops:  maxHops,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, userID, text string) (TurnOutput, error) {
	mu, _ := o.locks.LoadOrCompute(sessionID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	return o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
	})
}

// EndSession drops everything kept for the session.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	o.registry.Forget(sessionID)
	o.locks.Delete(sessionID)
	return o.store.Delete(ctx, sessionID)
}
