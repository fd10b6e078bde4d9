package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/agent/tools"
	"github.com/user/ledgerclaw/internal/clarify"
	"github.com/user/ledgerclaw/internal/config"
	ctxengine "github.com/user/ledgerclaw/internal/context"
	"github.com/user/ledgerclaw/internal/gateway"
	"github.com/user/ledgerclaw/internal/intake"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
	"github.com/user/ledgerclaw/internal/metrics"
	"github.com/user/ledgerclaw/internal/planner"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/state"
	"github.com/user/ledgerclaw/internal/state/gormstore"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
	"github.com/user/ledgerclaw/pkg/llm/openai"
)

// stores are the persistence backends, file based unless a database URL is set.
type stores struct {
	Sessions       types.SessionStore
	Messages       types.MessageStore
	Clarifications types.ClarificationStore
	Analyses       types.AnalysisStore
	Files          types.FileStore
	close          func() error
}

func (s *stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStores(cfg *config.Config) (*stores, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &stores{Files: state.NewFileStore(cfg.DataDir)}
	if cfg.DatabaseURL == "" {
		s.Sessions = state.NewSessionStore(cfg.DataDir)
		s.Messages = state.NewMessageStore(cfg.DataDir)
		s.Clarifications = state.NewClarificationStore(cfg.DataDir)
		s.Analyses = state.NewAnalysisStore(cfg.DataDir)
		return s, nil
	}

	db, err := gormstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	g := gormstore.New(db)
	s.Sessions, s.Messages, s.Clarifications, s.Analyses = g.Sessions, g.Messages, g.Clarifications, g.Analyses
	s.close = func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return s, nil
}

func catalogSource(cfg *config.Config) scenario.Source {
	dir := cfg.Scenarios.Dir
	if dir == "" {
		dir = filepath.Join(cfg.DataDir, "scenarios")
	}
	return scenario.NewCachedSource(scenario.NewFileSource(dir), cfg.CatalogTTL())
}

func newProvider(cfg *config.Config, jsonMode bool) llm.Provider {
	return openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		JSONMode:    jsonMode,
	})
}

// app is the wired engine shared by serve and the one-shot commands.
type app struct {
	stores  *stores
	gateway *gateway.Gateway
	runtime *agent.Runtime
	clarify *clarify.Machine
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	seed := masterdata.DefaultSeed()
	if cfg.Company.SeedFile != "" {
		if seed, err = masterdata.LoadSeed(cfg.Company.SeedFile); err != nil {
			st.Close()
			return nil, err
		}
	}
	md := masterdata.New(seed, logger.Named("masterdata"))
	profile := cfg.Profile()
	engine := ledger.NewEngine(md, md, md, profile, logger.Named("ledger"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.MustNew(reg)

	provider := newProvider(cfg, false)
	jsonProvider := newProvider(cfg, true)

	prompts, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	router := scenario.NewRouter(scenario.NewModelClassifier(jsonProvider), cfg.Agent.ScenarioConfidence, logger.Named("router"))
	in, err := intake.New(st.Files, st.Analyses, intake.Config{
		Extractor:   intake.NewModelExtractor(jsonProvider),
		Router:      router,
		Parallelism: cfg.Agent.IntakeParallelism,
		Logger:      logger.Named("intake"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	machine := clarify.NewMachine(st.Clarifications, md, logger.Named("clarify"))

	rt := agent.New(agent.Config{
		Provider:     provider,
		Prompts:      prompts,
		Sessions:     st.Sessions,
		Messages:     st.Messages,
		Analyses:     st.Analyses,
		Catalogs:     catalogSource(cfg),
		Router:       router,
		Planner:      planner.New(jsonProvider, logger.Named("planner")),
		Clarify:      machine,
		Intake:       in,
		Tools:        agent.NewRegistry(tools.All(tools.FromMemory(md, engine, mx))...),
		Profile:      profile,
		Metrics:      mx,
		Logger:       logger,
		MaxRounds:    cfg.Agent.MaxRounds,
		MaxFailures:  cfg.Agent.MaxToolFailures,
		HistoryLimit: cfg.Agent.HistoryLimit,
	})

	gw := gateway.New(st.Sessions, logger.Named("gateway"), int64(cfg.Agent.MaxConcurrent))
	gw.Queue.SetProcessor(rt.ProcessRun)

	return &app{stores: st, gateway: gw, runtime: rt, clarify: machine, metrics: mx, reg: reg}, nil
}

// openQuestions lists pending clarifications without building the engine.
func openQuestions(ctx context.Context, cfg *config.Config) ([]*types.ClarificationRequest, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return clarify.NewMachine(st.Clarifications, nil, nil).Pending(ctx)
}
