package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/archon/internal/commands"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <path>",
		Short: "Scaffold .archon/ in a repository clone outside any conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := commands.ScaffoldArchonDir(args[0]); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Printf("scaffolded %s/.archon/\n", args[0])
			return nil
		},
	}
}
