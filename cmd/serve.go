package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/archon/internal/adapter/discord"
	"github.com/nextlevelbuilder/archon/internal/adapter/telegram"
	"github.com/nextlevelbuilder/archon/internal/adapterapi"
	"github.com/nextlevelbuilder/archon/internal/assistant/claude"
	"github.com/nextlevelbuilder/archon/internal/assistant/codex"
	"github.com/nextlevelbuilder/archon/internal/cleanup"
	"github.com/nextlevelbuilder/archon/internal/commands"
	"github.com/nextlevelbuilder/archon/internal/config"
	"github.com/nextlevelbuilder/archon/internal/isolation"
	"github.com/nextlevelbuilder/archon/internal/lock"
	"github.com/nextlevelbuilder/archon/internal/orchestrator"
	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/store/pg"
	"github.com/nextlevelbuilder/archon/internal/workflow"
)

var errNoDSN = errors.New("ARCHON_POSTGRES_DSN environment variable is not set")

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Archon core: conversation routing, workflows, cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if cfg.PostgresDSN == "" {
		return errNoDSN
	}
	stores, err := pg.NewStores(cfg.PostgresDSN)
	if err != nil {
		return err
	}

	scheduler := cleanup.NewScheduler(stores, cfg.StaleThresholdDays)
	isoManager := isolation.NewManager(stores.Envs, cfg.MaxWorktreesPerCodebase, scheduler)

	registries := workflow.NewRegistryProvider()
	assistants := buildAssistantResolver()
	engine := workflow.NewEngine(stores, registries, assistants)

	cmdHandler := commands.New(stores, isoManager, cfg, registries, scheduler)

	lockMgr := lock.NewManager(cfg.MaxConcurrentConversations, func(conversationID string, err error) {
		slog.Error("conversation handler failed", "conversation_id", conversationID, "error", err)
	})

	orch := orchestrator.New(stores, lockMgr, cmdHandler, engine, cfg)

	registerConfiguredAdapters(orch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := cleanup.NewTicker(scheduler, cfg.CleanupIntervalHours)
	go ticker.Start(ctx)

	orch.StartAll(ctx)
	slog.Info("archon core started")

	<-ctx.Done()
	slog.Info("shutting down")
	ticker.Stop()
	orch.StopAll(context.Background())
	return nil
}

// buildAssistantResolver wires the Assistant Client implementations (§6.2):
// each execs its assistant's CLI binary, resolved from PATH unless
// CLAUDE_CLI_PATH/CODEX_CLI_PATH override it. A deployment missing a given
// CLI binary still starts; that assistant type just errors at first use.
func buildAssistantResolver() workflow.AssistantResolver {
	claudeClient := claude.New()
	codexClient := codex.New()

	return func(assistantType store.AssistantType) (adapterapi.AssistantClient, error) {
		switch assistantType {
		case store.AssistantCodex:
			return codexClient, nil
		default:
			return claudeClient, nil
		}
	}
}

// registerConfiguredAdapters wires in whichever Platform Adapters have
// credentials present in the environment; a deployment with neither token
// set runs with no adapters registered (useful for workflow-only testing).
func registerConfiguredAdapters(orch *orchestrator.Orchestrator) {
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		adapter, err := discord.New(token)
		if err != nil {
			slog.Error("failed to construct discord adapter", "error", err)
		} else {
			orch.RegisterAdapter(adapter)
		}
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		adapter, err := telegram.New(token)
		if err != nil {
			slog.Error("failed to construct telegram adapter", "error", err)
		} else {
			orch.RegisterAdapter(adapter)
		}
	}
}
