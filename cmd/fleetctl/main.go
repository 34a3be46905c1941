// Package main implements fleetctl, the command-line entry point for the
// headless agent fleet control core.
//
// # File Index
//
//   - main.go   - entry point, rootCmd, global flags, init()
//   - run.go    - runCmd: loads config, opens the store, starts the fleet
//   - status.go - statusCmd: one-shot and --watch live fleet status
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetcore/agentfleet/internal/logging"
)

var (
	verbose   bool
	workspace string
	cfgPath   string
	timeout   time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "fleetctl - headless game-agent fleet control core",
	Long: `fleetctl runs and inspects a fleet of headless game-client agents.

Each agent runs an independent perceive-plan-act tick loop driven by an
LLM planner, a deterministic feasibility guard, and a skill engine. The
Fleet Orchestrator owns the shared rate limiter, lock manager, and
persistence layer; this CLI is the operator's entry point into it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "fleet.yaml", "path to the fleet config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall run timeout (0 = unbounded)")

	rootCmd.AddCommand(runCmd, statusCmd, stopCmd)
}

func resolvedConfigPath() string {
	if filepath.IsAbs(cfgPath) {
		return cfgPath
	}
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	return filepath.Join(ws, cfgPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
