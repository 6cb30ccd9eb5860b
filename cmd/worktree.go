package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/archon/internal/cleanup"
	"github.com/nextlevelbuilder/archon/internal/commands"
	"github.com/nextlevelbuilder/archon/internal/config"
	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/store/pg"
)

func worktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Inspect and reclaim isolation environments outside any conversation",
	}
	cmd.AddCommand(worktreeListCmd())
	cmd.AddCommand(worktreeCleanupCmd())
	return cmd
}

func connectStoresForOps() (*store.Stores, error) {
	dsn, err := resolveDSN()
	if err != nil {
		return nil, err
	}
	return pg.NewStores(dsn)
}

func worktreeListCmd() *cobra.Command {
	var codebaseID string
	c := &cobra.Command{
		Use:   "list",
		Short: "List active isolation environments for a codebase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if codebaseID == "" {
				return fmt.Errorf("--codebase is required")
			}
			stores, err := connectStoresForOps()
			if err != nil {
				return err
			}
			envs, err := stores.Envs.ListActive(cmd.Context(), codebaseID)
			if err != nil {
				return err
			}
			if len(envs) == 0 {
				fmt.Println("no active isolation environments")
				return nil
			}
			for _, env := range envs {
				fmt.Printf("%s  %s/%s  branch=%s  status=%s  path=%s\n",
					env.ID, env.WorkflowType, env.WorkflowID, env.BranchName, env.Status, env.WorkingPath)
			}
			return nil
		},
	}
	c.Flags().StringVar(&codebaseID, "codebase", "", "codebase id")
	return c
}

func worktreeCleanupCmd() *cobra.Command {
	var codebaseID, repoPath string
	c := &cobra.Command{
		Use:   "cleanup merged|stale",
		Short: "Run the cleanup scheduler's merged or stale pass once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if codebaseID == "" || repoPath == "" {
				return fmt.Errorf("--codebase and --repo-path are required")
			}
			stores, err := connectStoresForOps()
			if err != nil {
				return err
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			scheduler := cleanup.NewScheduler(stores, cfg.StaleThresholdDays)

			var report commands.CleanupReport
			switch args[0] {
			case "merged":
				report, err = scheduler.RunMerged(cmd.Context(), codebaseID, repoPath)
			case "stale":
				report, err = scheduler.RunStale(cmd.Context(), codebaseID, repoPath)
			default:
				return fmt.Errorf("unknown cleanup mode %q (expected merged|stale)", args[0])
			}
			if err != nil {
				return err
			}

			printCleanupReport(report)
			return nil
		},
	}
	c.Flags().StringVar(&codebaseID, "codebase", "", "codebase id")
	c.Flags().StringVar(&repoPath, "repo-path", "", "canonical clone path (for git plumbing)")
	return c
}

func printCleanupReport(report commands.CleanupReport) {
	fmt.Printf("removed: %d\n", len(report.Removed))
	for _, id := range report.Removed {
		fmt.Printf("  removed  %s\n", id)
	}
	for _, s := range report.Skipped {
		fmt.Printf("  skipped  %s (%s)\n", s.ID, s.Reason)
	}
	for _, e := range report.Errors {
		fmt.Printf("  error    %s (%s)\n", e.ID, e.Error)
	}
}
