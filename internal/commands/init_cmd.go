package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/archon/internal/store"
)

const defaultArchonConfig = "workflows_dir: workflows\ncommands_dir: commands\n"

const defaultExampleCommand = "---\ndescription: Example command\n---\nDescribe what you'd like done.\n"

func (h *Handler) cmdInit(ctx context.Context, conv *store.Conversation) Result {
	if conv.Cwd == nil {
		return fail("cwd not set; use /setcwd or /clone first")
	}
	if err := ScaffoldArchonDir(*conv.Cwd); err != nil {
		return fail(err.Error())
	}
	return okModified("scaffolded .archon/")
}

// ScaffoldArchonDir creates the `.archon/{config.yaml,commands/example.md}`
// layout under repoPath if it doesn't already exist — shared by /init and
// the `archon init` CLI subcommand.
func ScaffoldArchonDir(repoPath string) error {
	archonDir := filepath.Join(repoPath, ".archon")
	if _, err := os.Stat(archonDir); err == nil {
		return fmt.Errorf("already exists")
	}

	if err := os.MkdirAll(filepath.Join(archonDir, "commands"), 0o755); err != nil {
		return fmt.Errorf("scaffold .archon: %w", err)
	}
	if err := os.WriteFile(filepath.Join(archonDir, "config.yaml"), []byte(defaultArchonConfig), 0o644); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(archonDir, "commands", "example.md"), []byte(defaultExampleCommand), 0o644); err != nil {
		return fmt.Errorf("write example.md: %w", err)
	}
	return nil
}
