package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/brain-orchestrator/agent/agents/orchestrator"
	routerx "github.com/tanpawarit/brain-orchestrator/agent/agents/router"
	specialistx "github.com/tanpawarit/brain-orchestrator/agent/agents/specialist"
	synthesizerx "github.com/tanpawarit/brain-orchestrator/agent/agents/synthesizer"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/sandbox"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/sqlstore"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/websearch"
	configx "github.com/tanpawarit/brain-orchestrator/pkg/config"
)

const sandboxProbe = `package main

import "fmt"

func main() { fmt.Println("ok") }
`

// app is everything a command needs, built once from configuration.
type app struct {
	orchestrator *orchestratorx.Orchestrator
	closers      []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

// buildApp wires the pipeline. Tools whose configuration is absent are left
// out and their specialists are not registered.
func buildApp(ctx context.Context) (*app, error) {
	a := &app{}

	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("llm config: %w", err)
	}
	promptCfg, err := configx.New[promptx.Config]("PROMPT")
	if err != nil {
		return nil, fmt.Errorf("prompt config: %w", err)
	}
	storeCfg, err := configx.New[sqlstore.Config]("STORE")
	if err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	searchCfg, err := configx.New[websearch.Config]("SEARCH")
	if err != nil {
		return nil, fmt.Errorf("search config: %w", err)
	}
	sandboxCfg, err := configx.New[sandbox.Config]("SANDBOX")
	if err != nil {
		return nil, fmt.Errorf("sandbox config: %w", err)
	}
	routerCfg, err := configx.New[routerx.Config]("ROUTER")
	if err != nil {
		return nil, fmt.Errorf("router config: %w", err)
	}
	specialistCfg, err := configx.New[specialistx.Config]("SPECIALIST")
	if err != nil {
		return nil, fmt.Errorf("specialist config: %w", err)
	}
	orchestratorCfg, err := configx.New[orchestratorx.Config]("")
	if err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}

	prompts, err := promptx.NewStore(*promptCfg)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if promptCfg.Watch {
		go func() {
			if err := prompts.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("prompt watch stopped")
			}
		}()
	}

	models, err := llmx.NewModels(ctx, *llmCfg)
	if err != nil {
		return nil, err
	}

	deps := specialistx.Deps{
		Model:   models.Specialist,
		Prompts: prompts,
		Sandbox: sandbox.NewExecutor(*sandboxCfg),
	}

	var store *sqlstore.Store
	if storeCfg.DSN != "" {
		store, err = sqlstore.Open(*storeCfg)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		deps.Store = store
	} else {
		log.Warn().Msg("STORE_DSN not set, database specialist disabled")
	}

	var search *websearch.TavilyClient
	if searchCfg.APIKey != "" {
		search, err = websearch.NewTavilyClient(*searchCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("search client: %w", err)
		}
		deps.Search = search
	} else {
		log.Warn().Msg("SEARCH_API_KEY not set, web research specialist disabled")
	}

	registry, err := specialistx.NewRegistry(ctx, deps, *specialistCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	router, err := routerx.New(ctx, models.Router, prompts, registry.IDs(), *routerCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	synthesizer, err := synthesizerx.New(ctx, models.Synthesizer, prompts)
	if err != nil {
		a.Close()
		return nil, err
	}

	checks := []orchestratorx.Option{
		orchestratorx.WithHealthCheck("llm", func(ctx context.Context) error {
			return llmx.Probe(ctx, *llmCfg)
		}),
		orchestratorx.WithHealthCheck("sandbox", func(ctx context.Context) error {
			_, err := deps.Sandbox.Execute(ctx, sandboxProbe)
			return err
		}),
	}
	if store != nil {
		checks = append(checks, orchestratorx.WithHealthCheck("store", store.Ping))
	} else {
		checks = append(checks, orchestratorx.WithHealthCheck("store", nil))
	}
	if search != nil {
		checks = append(checks, orchestratorx.WithHealthCheck("search", func(context.Context) error { return nil }))
	} else {
		checks = append(checks, orchestratorx.WithHealthCheck("search", nil))
	}

	o, err := orchestratorx.New(router, registry, synthesizer, *orchestratorCfg, checks...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orchestrator = o

	log.Info().
		Interface("specialists", registry.IDs()).
		Str("llm_provider", llmCfg.Provider).
		Msg("pipeline ready")
	return a, nil
}
