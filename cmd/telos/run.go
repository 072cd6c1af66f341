// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/config"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/curator"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/llm"
	"github.com/telos-ai/telos/pkg/memory"
	memollama "github.com/telos-ai/telos/pkg/memory/ollama"
	"github.com/telos-ai/telos/pkg/memory/qdrant"
	"github.com/telos-ai/telos/pkg/orchestrator"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/protocol"
	"github.com/telos-ai/telos/pkg/react"
	"github.com/telos-ai/telos/pkg/reasoner"
	"github.com/telos-ai/telos/pkg/reflexion"
	"github.com/telos-ai/telos/pkg/telemetry"
	"github.com/telos-ai/telos/pkg/tot"
)

const embeddingVectorSize = 768 // nomic-embed-text

func runRun(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	planPath := cmd.String("plan", "", "Path to an explicit plan file (YAML/JSON)")
	checklist := cmd.String("checklist", "", "Comma-separated checklist items for the goal state")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable trace and metric export")
	watch := cmd.Bool("watch", false, "Watch the config file and log reloads")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if !*noTelemetry {
		shutdown, err := telemetry.InitWithConfig("telos", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(fmt.Errorf("init telemetry: %w", err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry.shutdown.failed", "error", err)
			}
		}()
	}

	if *watch && global.ConfigPath != "" {
		watcher, err := config.NewWatcher([]string{global.ConfigPath}, config.WithWatchLogger(logger))
		if err != nil {
			fatal(fmt.Errorf("watch config: %w", err))
		}
		watcher.OnChange(func(*config.Config) {
			logger.Info("config.changed", "note", "most settings apply on next run")
		})
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		fatal(err)
	}
	defer rt.Close()

	orch := orchestrator.New(rt.Deps, orchestrator.Config{
		MaxSteps:      cfg.Orchestrator.MaxSteps,
		Workers:       cfg.Orchestrator.Workers,
		ActionTimeout: cfg.Orchestrator.ActionTimeout,
	})

	var report orchestrator.Report
	if *planPath != "" {
		parsed, err := plan.ParseFile(*planPath)
		if err != nil {
			fatal(fmt.Errorf("parse plan: %w", err))
		}
		report, err = orch.RunPlanned(ctx, parsed)
		if err != nil {
			fatal(err)
		}
	} else {
		directive := strings.TrimSpace(strings.Join(cmd.Args(), " "))
		if directive == "" {
			fatal(fmt.Errorf("run needs a prime directive argument or -plan"))
		}
		report, err = orch.RunMission(ctx, directive, splitChecklist(*checklist))
		if err != nil {
			fatal(err)
		}
	}

	printReport(report, global.JSON)
	if report.Status != core.MissionStatusSucceeded {
		os.Exit(1)
	}
}

// runtime bundles the orchestrator dependencies with whatever needs closing
// when the mission is over.
type runtime struct {
	Deps    orchestrator.Deps
	closers []func() error
	logger  *slog.Logger
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("runtime.close.failed", "error", err)
		}
	}
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{logger: logger}

	var (
		planStore plan.Store
		goalStore goal.Store
		memStore  memory.Store
	)
	switch cfg.Store.Provider {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		if planStore, err = plan.NewSQLiteStore(db); err != nil {
			return nil, err
		}
		if goalStore, err = goal.NewSQLiteStore(db); err != nil {
			return nil, err
		}
		if memStore, err = memory.NewSQLiteStore(db); err != nil {
			return nil, err
		}
	default:
		planStore = plan.NewMemStore()
		goalStore = goal.NewMemStore()
		memStore = memory.NewLog()
	}

	var kb knowledge.Store
	if cfg.Knowledge.Provider == "file" {
		fileKB, err := knowledge.NewFileStore(cfg.Knowledge.Dir)
		if err != nil {
			return nil, fmt.Errorf("open knowledge base: %w", err)
		}
		kb = fileKB
	} else {
		kb = knowledge.NewMemStore()
	}

	registry := capability.NewRegistry()
	gw := gateway.New(registry,
		gateway.WithDefaultTimeout(cfg.Gateway.DefaultTimeout),
		gateway.WithMinConfidence(cfg.Gateway.MinConfidence),
	)
	registerBuiltinTools(gw)
	if err := connectMCPServers(ctx, rt, gw, cfg.MCP, logger); err != nil {
		return nil, err
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "mock":
		provider = &llm.MockProvider{}
	default:
		provider = llm.NewOllama(cfg.LLM.BaseURL)
	}
	collab := reasoner.NewLLMCollaborator(provider, cfg.LLM.Model)

	var recallOpts []memory.RecallerOption
	if cfg.Memory.VectorEnabled {
		vectors, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		if err := vectors.CreateCollection(ctx, cfg.Memory.Collection, embeddingVectorSize); err != nil {
			logger.Warn("memory.collection.create", "error", err)
		}
		embedder := memollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
		recallOpts = append(recallOpts, memory.WithVectors(vectors, embedder, cfg.Memory.Collection))
	}

	plans := plan.NewManager(planStore)
	goals := goal.NewManager(goalStore)
	recaller := memory.NewRecaller(memStore, recallOpts...)
	boundary := escalation.NewLogBoundary(logger)

	cur := curator.New(goals, recaller, registry,
		curator.WithKnowledge(kb),
		curator.WithBudget(cfg.Curator.ContextBudget),
		curator.WithLogger(logger),
	)
	executor := react.NewExecutor(collab, gw, cur,
		react.WithActionTimeout(cfg.Orchestrator.ActionTimeout),
		react.WithLogger(logger),
	)
	explorer := tot.NewEngine(collab, collab, gw, tot.Config{
		Width:          cfg.ToT.Width,
		Depth:          cfg.ToT.Depth,
		ScoreThreshold: cfg.ToT.ScoreThreshold,
	}, tot.WithActionTimeout(cfg.Orchestrator.ActionTimeout), tot.WithLogger(logger))
	reflector := reflexion.NewReflector(memStore, recaller, registry, logger)

	tier1 := protocol.NewTier1(plans, collab, memStore, boundary, cfg.Protocol.MaxRetries, logger)
	tier2 := protocol.NewTier2(plans, collab, collab, kb, registry, memStore, boundary, logger)

	metrics, err := telemetry.NewMissionMetrics()
	if err != nil {
		logger.Warn("metrics.init.failed", "error", err)
	}

	rt.Deps = orchestrator.Deps{
		Plans:      plans,
		Goals:      goals,
		Decomposer: plan.NewDecomposer(collab, logger),
		Executor:   executor,
		Explorer:   explorer,
		Gateway:    gw,
		Reflector:  reflector,
		Protocol:   protocol.NewEngine(tier1, tier2, logger),
		Boundary:   boundary,
		Emitter:    &logEmitter{logger: logger},
		Metrics:    metrics,
		Logger:     logger,
	}
	return rt, nil
}

// logEmitter surfaces semantic events on the structured log so an operator
// can follow a mission live.
type logEmitter struct {
	logger *slog.Logger
}

func (e *logEmitter) Emit(_ context.Context, event core.Event) {
	attrs := []any{"mission_id", event.MissionID}
	if event.TaskID != "" {
		attrs = append(attrs, "task_id", event.TaskID)
	}
	for k, v := range event.Payload {
		attrs = append(attrs, k, v)
	}
	e.logger.Info(string(event.Type), attrs...)
}

func splitChecklist(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func printReport(report orchestrator.Report, asJSON bool) {
	if asJSON {
		out, _ := json.Marshal(map[string]any{
			"mission_id": report.MissionID,
			"status":     string(report.Status),
			"tasks":      report.Tasks,
			"succeeded":  report.Succeeded,
			"blocked":    report.Blocked,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("mission %s: %s (%d/%d tasks succeeded, %d blocked)\n",
		report.MissionID, report.Status, report.Succeeded, report.Tasks, report.Blocked)
}
