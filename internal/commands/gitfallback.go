package commands

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// runGitPull runs `git pull` in dir, used by `/repo <selector> pull`.
func runGitPull(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "pull")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// gitBranchFallback resolves the checked-out branch at path for display
// purposes (I3's "git-derived branch detection" on an orphaned reference).
// It never errors: on any failure or timeout it returns "unknown" (§5).
func gitBranchFallback(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
