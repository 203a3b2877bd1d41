// Command cortexd runs the cognition service: a WebSocket chat stream in
// front of the plan/arbitrate/execute/narrate pipeline.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cortexkit/cortex/ai"
	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/orchestration"
	"github.com/cortexkit/cortex/subsystems"
	"github.com/cortexkit/cortex/telemetry"
	"github.com/cortexkit/cortex/tools"
	"github.com/cortexkit/cortex/transport"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := core.NewConfig()
	if err != nil {
		fallback := core.NewProductionLogger("cortexd", "error", "")
		fallback.Error("Invalid configuration", map[string]interface{}{
			"operation": "startup",
			"error":     err.Error(),
		})
		os.Exit(1)
	}

	logger := core.NewProductionLogger(cfg.Name, cfg.Logging.Level, cfg.Logging.Format)
	tel := telemetry.NewProvider(cfg.Name)

	if err := run(cfg, logger, tel); err != nil {
		logger.Error("Service terminated", map[string]interface{}{
			"operation": "startup",
			"error":     err.Error(),
		})
		os.Exit(1)
	}
}

func run(cfg *core.Config, logger core.Logger, tel core.Telemetry) error {
	plannerAI, err := ai.NewClient(cfg.AI.Provider, cfg.AI.PlannerURL, cfg.AI.APIKey, cfg.AI.PlannerModel)
	if err != nil {
		return err
	}
	narratorAI, err := ai.NewClient(cfg.AI.Provider, cfg.AI.NarratorURL, cfg.AI.APIKey, cfg.AI.NarratorModel)
	if err != nil {
		return err
	}

	memory := subsystems.NewMemoryClient(cfg.Subsystems.MemoryURL)
	memory.SetLogger(logger)
	rag := subsystems.NewRagClient(cfg.Subsystems.RagURL)
	rag.SetLogger(logger)
	client := subsystems.NewActionClient(cfg.Subsystems.ClientURL)
	client.SetLogger(logger)
	ops := subsystems.NewActionClient(cfg.Subsystems.OpsURL)
	ops.SetLogger(logger)

	pcfg := orchestration.DefaultConfig()
	pcfg.HistorySize = cfg.Redis.HistorySize
	registry := tools.NewRegistry()

	store, closeStore, err := newStore(cfg, logger, pcfg)
	if err != nil {
		return err
	}
	defer closeStore()

	router := orchestration.NewIntentRouter()
	router.SetLogger(logger)

	validator := orchestration.NewPlanValidator(registry, pcfg)
	planner := orchestration.NewPlanner(plannerAI, registry, validator, pcfg, cfg.AI.PlannerModel)
	planner.SetLogger(logger)
	planner.SetTelemetry(tel)

	arbiter := orchestration.NewDecisionArbiter()
	arbiter.SetLogger(logger)

	executor := orchestration.NewDAGExecutor(registry, memory, rag, client, ops, pcfg)
	executor.SetLogger(logger)
	executor.SetTelemetry(tel)

	analyst := orchestration.NewSemanticAnalyst(registry)
	analyst.SetLogger(logger)

	admission := orchestration.NewMemoryAdmission(memory)
	admission.SetLogger(logger)

	narrator := orchestration.NewNarrator(narratorAI, pcfg, cfg.AI.NarratorModel)
	narrator.SetLogger(logger)

	pipeline := orchestration.NewOrchestrator(orchestration.OrchestratorDeps{
		Router:    router,
		Planner:   planner,
		Arbiter:   arbiter,
		Executor:  executor,
		Analyst:   analyst,
		Admission: admission,
		Narrator:  narrator,
		Memory:    memory,
		Store:     store,
	}, pcfg)
	pipeline.SetLogger(logger)
	pipeline.SetTelemetry(tel)

	chat := transport.NewChatServer(pipeline, cfg.Server.MaxStreams)
	chat.SetLogger(logger)
	chat.SetTelemetry(tel)

	server := &http.Server{
		Addr:         cfg.Server.BindAddress,
		Handler:      chat.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Service listening", map[string]interface{}{
			"operation": "startup",
			"address":   cfg.Server.BindAddress,
			"provider":  cfg.AI.Provider,
		})
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", map[string]interface{}{
			"operation": "shutdown",
			"signal":    sig.String(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newStore selects the execution audit backend. Redis when enabled and
// reachable, otherwise a bounded in-memory store.
func newStore(cfg *core.Config, logger core.Logger, pcfg *orchestration.Config) (orchestration.ExecutionStore, func(), error) {
	if !cfg.Redis.Enabled {
		return orchestration.NewInMemoryExecutionStore(pcfg.HistorySize), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	store, err := orchestration.NewRedisExecutionStore(ctx, cfg.Redis.Address, cfg.Redis.HistorySize, cfg.Redis.TTL)
	if err != nil {
		return nil, nil, err
	}
	store.SetLogger(logger)
	logger.Info("Redis audit store connected", map[string]interface{}{
		"operation": "startup",
		"address":   cfg.Redis.Address,
	})
	return store, func() { _ = store.Close() }, nil
}
