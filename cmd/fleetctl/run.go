package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/config"
	"github.com/fleetcore/agentfleet/internal/fleet"
	"github.com/fleetcore/agentfleet/internal/llmclient"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the fleet and run its agents' tick loops until interrupted",
	RunE:  runRun,
}

// runRun loads config, wires the Store/Catalog/LLM Client, and starts the
// Fleet Orchestrator. It blocks until SIGINT/SIGTERM or --timeout elapses,
// then runs the ordered shutdown sequence.
func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	watcher, err := config.NewWatcher(resolvedConfigPath(), cfg, func(*config.Config) {
		logging.Fleet("config reloaded")
	})
	if err != nil {
		logging.BootWarn("config hot-reload watcher unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var llm adapter.LLMClient
	if cfg.LLM.APIKey != "" {
		llm, err = llmclient.NewGenAIClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("constructing LLM client: %w", err)
		}
	} else {
		return fmt.Errorf("no LLM API key configured (set llm.api_key or FLEET_LLM_API_KEY)")
	}

	cat := catalog.NewInMemoryCatalog()

	dial := func(ctx context.Context, botID string) (adapter.Agent, error) {
		return nil, fmt.Errorf("no Agent Adapter wired for %s: this build ships the control core and the genai LLM client only; supply a concrete adapter.Agent implementation for your game server's protocol", botID)
	}

	orch := fleet.New(cfg, st, cat, llm, dial)

	var stopOnce sync.Once
	stopFleet := func() { stopOnce.Do(func() { orch.Stop(context.Background()) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Fleet("interrupt received, stopping fleet")
		stopFleet()
		cancel()
	}()

	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
		defer timeoutCancel()
	}

	err = orch.Start(ctx)
	stopFleet()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("fleet run failed: %w", err)
	}
	return nil
}
