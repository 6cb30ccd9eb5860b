package isolation

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// gitQueryTimeout bounds read-only git subprocess calls (§5): on timeout the
// caller gets the sentinel "unknown" instead of an error.
const gitQueryTimeout = 3 * time.Second

// branchNamePattern restricts user-provided branch names (§4.3).
var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidBranchName reports whether name is safe to pass to git and to use as
// a worktree directory segment.
func ValidBranchName(name string) bool {
	return name != "" && branchNamePattern.MatchString(name)
}

// gitRunner wraps git subprocess invocations rooted at a repository
// directory, the same thin exec.Command wrapper shape the teacher uses for
// its git plumbing, generalized with context timeouts for read-only queries.
type gitRunner struct {
	repoDir string
}

func newGitRunner(repoDir string) *gitRunner {
	return &gitRunner{repoDir: repoDir}
}

func (g *gitRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// runQuery runs a read-only query with the 3-second timeout (§5). On
// timeout it returns the sentinel "unknown" rather than an error.
func (g *gitRunner) runQuery(parent context.Context, args ...string) string {
	ctx, cancel := context.WithTimeout(parent, gitQueryTimeout)
	defer cancel()
	out, err := g.run(ctx, args...)
	if err != nil {
		return "unknown"
	}
	return out
}

// addWorktree creates a new worktree at path on a new branch, optionally
// checked out from baseRef (a branch name or commit sha). If baseRef is
// empty, the branch is created off the repository's current HEAD.
func (g *gitRunner) addWorktree(ctx context.Context, path, branch, baseRef string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	_, err := g.run(ctx, args...)
	return err
}

// addWorktreeExistingBranch attaches a worktree to a branch that already
// exists (same-repo PR with a branchHint) and optionally checks out baseSha.
func (g *gitRunner) addWorktreeExistingBranch(ctx context.Context, path, branch, baseSha string) error {
	if _, err := g.run(ctx, "worktree", "add", path, branch); err != nil {
		return err
	}
	if baseSha == "" {
		return nil
	}
	wt := newGitRunner(path)
	_, err := wt.run(ctx, "checkout", baseSha)
	return err
}

// removeWorktree removes the worktree at path. force passes --force to
// discard it even with uncommitted changes; callers must have already
// checked I8 before setting force unconditionally.
func (g *gitRunner) removeWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := g.run(ctx, args...)
	return err
}

// deleteBranch deletes a local branch with -D (force), used after a worktree
// backing it has been removed.
func (g *gitRunner) deleteBranch(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "branch", "-D", branch)
	return err
}

// branchExists reports whether branch is a known local branch.
func (g *gitRunner) branchExists(ctx context.Context, branch string) bool {
	_, err := g.run(ctx, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// hasUncommittedChanges reports whether the worktree at path has a dirty
// index or working tree.
func (g *gitRunner) hasUncommittedChanges(ctx context.Context, path string) bool {
	wt := newGitRunner(path)
	out, err := wt.run(ctx, "status", "--porcelain")
	if err != nil {
		// Can't determine cleanliness; treat as dirty so destroy errs on the
		// side of not losing data (I8).
		return true
	}
	return out != ""
}

// isValidWorktree reports whether path is a directory under git's
// management as a worktree (as opposed to having been removed externally).
func (g *gitRunner) isValidWorktree(ctx context.Context, path string) bool {
	wt := newGitRunner(path)
	_, err := wt.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// mergedBranches returns local branches already merged into mainBranch.
func (g *gitRunner) mergedBranches(ctx context.Context, mainBranch string) ([]string, error) {
	out, err := g.run(ctx, "branch", "--merged", mainBranch, "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	lines := strings.Split(out, "\n")
	branches := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" && l != mainBranch {
			branches = append(branches, l)
		}
	}
	return branches, nil
}

// mainBranch resolves the symbolic-ref target of refs/remotes/origin/HEAD,
// falling back to "main" per §4.6.
func (g *gitRunner) mainBranch(ctx context.Context) string {
	ref := g.runQuery(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if ref == "unknown" || ref == "" {
		return "main"
	}
	// ref looks like "refs/remotes/origin/main"
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

// currentBranch resolves the branch checked out at path, used for
// orphaned-reference fallback detection (I3).
func (g *gitRunner) currentBranch(ctx context.Context, path string) string {
	wt := newGitRunner(path)
	return wt.runQuery(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// listWorktrees parses `git worktree list --porcelain` into path→branch pairs,
// the ground truth used by `/worktree orphans`.
func (g *gitRunner) listWorktrees(ctx context.Context) (map[string]string, error) {
	out, err := g.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	result := make(map[string]string)
	var curPath string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			curPath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			result[curPath] = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	return result, nil
}
