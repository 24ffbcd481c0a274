package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/config"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/logging"
	"github.com/sattvalabs/wisdomd/internal/orchestrator"
	"github.com/sattvalabs/wisdomd/internal/store"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"

	"go.uber.org/zap"
)

// statsCmd prints aggregate learning statistics as JSON.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print system learning statistics",
	Long: `Print aggregate statistics for the learning store: atom counts by
category, graph health, active templates, and the self-sufficiency rate
across closed sessions.

Examples:
  wisdomd stats
  wisdomd --config ~/.config/wisdomd/config.yaml stats`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.close()

	stats, err := env.orchestrator.SystemStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("gathering stats: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stats)
}

// env bundles the wired engines for CLI commands.
type env struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        store.ContentStore
	graph        *versegraph.Graph
	orchestrator *orchestrator.Orchestrator
}

func (e *env) close() {
	_ = e.logger.Sync()
	_ = e.store.Close()
}

// buildEnv loads config and wires the engines against the configured store.
func buildEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	contentStore, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	distiller, err := wisdom.NewDistiller(contentStore, cfg.Distill, logger)
	if err != nil {
		return nil, err
	}
	graph, err := versegraph.NewGraph(contentStore, cfg.Graph, logger)
	if err != nil {
		return nil, err
	}
	flowEngine, err := flow.NewEngine(contentStore, cfg.Flow, logger)
	if err != nil {
		return nil, err
	}
	composer, err := compose.NewComposer(contentStore, contentStore, graph, cfg.Compose, logger)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(distiller, graph, flowEngine, composer,
		contentStore, contentStore, contentStore, nil, logger)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:          cfg,
		logger:       logger,
		store:        contentStore,
		graph:        graph,
		orchestrator: orch,
	}, nil
}
