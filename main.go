package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/Chative-Agent-Routing/agent/agents/orchestrator"
	plannerx "github.com/tanpawarit/Chative-Agent-Routing/agent/agents/planner"
	contractx "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/prompt"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/registry"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/remote"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/route"
	statex "github.com/tanpawarit/Chative-Agent-Routing/agent/state"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/worker"
	configx "github.com/tanpawarit/Chative-Agent-Routing/pkg/config"
	_ "github.com/tanpawarit/Chative-Agent-Routing/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Agent-Routing/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Agent-Routing/pkg/qstash"
)

type AppConfig struct {
	SessionID string `split_words:"true" default:"local"`
	UserID    string `split_words:"true" default:"local-user"`
	// JSON array of registrations, used when no Postgres feed is configured
	Agents string `split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")
	routeCfg := configx.MustNew[route.Config]("ROUTE")
	orchestratorCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")
	a2aCfg := configx.MustNew[remote.Config]("A2A")
	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")

	prompts := prompt.MustLoad()

	chatModel, err := openRouterCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("init chat model")
	}
	chat, err := worker.NewChat(ctx, chatModel, prompts.WorkerSystem)
	if err != nil {
		log.Fatal().Err(err).Msg("init chat worker")
	}

	invoker, err := remote.New(*a2aCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init a2a client")
	}

	agents := registry.NewStore()
	router := route.New(*routeCfg, invoker,
		route.WithRegistryStore(agents),
		route.WithWorker(worker.TokenChat, chat),
		route.WithWorker(worker.TokenCalc, worker.Calc{}),
		route.WithPrompts(prompts),
		route.WithKeepAlive(func(_ context.Context, sessionID, agentID string, elapsed time.Duration) {
			log.Info().
				Str("session_id", sessionID).
				Str("agent_id", agentID).
				Dur("elapsed", elapsed).
				Msg("waiting for remote agent")
		}),
	)

	opts := []orchestratorx.Option{
		orchestratorx.WithFeed(mustFeed(appCfg)),
		orchestratorx.WithRegistryStore(agents),
	}
	if sink := optionalSink(); sink != nil {
		opts = append(opts, orchestratorx.WithSink(sink))
	}

	orchestrator, err := orchestratorx.New(
		stateStore(),
		plannerx.NewMention(worker.TokenChat),
		router,
		*orchestratorCfg,
		opts...,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		out, err := orchestrator.HandleMessage(ctx, appCfg.SessionID, appCfg.UserID, text)
		if err != nil {
			log.Error().Err(err).Str("session_id", appCfg.SessionID).Msg("turn failed")
			continue
		}
		fmt.Println(out.Reply)
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("read stdin")
	}

	if err := orchestrator.EndSession(context.WithoutCancel(ctx), appCfg.SessionID); err != nil {
		log.Error().Err(err).Msg("end session")
	}
}

func stateStore() statex.Store {
	cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		log.Info().Msg("upstash redis not configured, keeping routing state in memory")
		return statex.NewMemoryStore()
	}
	store, err := statex.NewUpstashRedisStore(*cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init upstash redis store")
	}
	return store
}

func mustFeed(appCfg *AppConfig) contractx.RegistrationFeed {
	if cfg, err := configx.New[registry.PostgresConfig]("REGISTRY"); err == nil {
		feed, err := registry.NewPostgresFeed(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init postgres registration feed")
		}
		return feed
	}

	var rows []contractx.Registration
	if raw := strings.TrimSpace(appCfg.Agents); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			log.Fatal().Err(err).Msg("decode APP_AGENTS")
		}
	}
	return registry.StaticFeed(rows)
}

func optionalSink() contractx.MessageSink {
	cfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil || strings.TrimSpace(cfg.Destination) == "" {
		return nil
	}
	sink, err := qstashx.NewSink(qstashx.MustNew(*cfg), cfg.Destination)
	if err != nil {
		log.Fatal().Err(err).Msg("init qstash sink")
	}
	return sink
}
