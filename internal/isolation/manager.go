// Package isolation implements the Isolation Manager (§4.3): the invariant
// that every logical workflow maps to exactly one active working directory,
// backed by a git worktree.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// ErrLimitReached is returned by Ensure when a codebase is at capacity and a
// single cleanup retry still leaves it at capacity (§4.3).
var ErrLimitReached = errors.New("worktree limit reached")

// ErrUncommittedChanges is returned by Destroy when force=false and the
// worktree has a dirty index or working tree (I8).
var ErrUncommittedChanges = errors.New("uncommitted changes")

// ErrAlreadyActive signals I4: the identity already has an active environment.
var ErrAlreadyActive = store.ErrAlreadyActive

const maxWorktreesPerCodebaseDefault = 25

// EnsureParams carries the optional context for Ensure-for-workflow (§4.3).
type EnsureParams struct {
	CodebaseID       string
	CanonicalRepoPath string
	WorkflowType     store.WorkflowType
	WorkflowID       string
	RelatedIssues    []int
	CreatedByPlatform string
	BranchHint       string // same-repo PR: attach to an existing branch
	BaseSHA          string
}

// DestroyParams carries the optional context for Destroy (§4.3).
type DestroyParams struct {
	Force             bool
	BranchName        string
	CanonicalRepoPath string
}

// Manager implements the Isolation Manager.
type Manager struct {
	envs                    store.IsolationEnvStore
	maxWorktreesPerCodebase int
	cleanup                 MergedCleaner
}

// MergedCleaner runs merged-branch reclamation for a codebase and returns
// how many environments it removed — the Cleanup Scheduler (§4.6)
// implements this; the Isolation Manager only depends on the behavior to
// run Cleanup-to-make-room without an import cycle.
type MergedCleaner interface {
	CleanupMerged(ctx context.Context, codebaseID, canonicalRepoPath string) (removed int, err error)
}

// NewManager constructs an Isolation Manager. maxWorktreesPerCodebase <= 0
// uses the spec default of 25.
func NewManager(envs store.IsolationEnvStore, maxWorktreesPerCodebase int, cleanup MergedCleaner) *Manager {
	if maxWorktreesPerCodebase <= 0 {
		maxWorktreesPerCodebase = maxWorktreesPerCodebaseDefault
	}
	return &Manager{envs: envs, maxWorktreesPerCodebase: maxWorktreesPerCodebase, cleanup: cleanup}
}

// WorkingPath returns {canonicalRepoPath}/worktrees/{branch} — the public
// marker of a worktree path is the "worktrees" path segment (§4.3, §6.4).
func WorkingPath(canonicalRepoPath, branch string) string {
	return filepath.Join(canonicalRepoPath, "worktrees", branch)
}

// IsWorktreePath reports whether path has "worktrees" as a path segment.
func IsWorktreePath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "worktrees" {
			return true
		}
	}
	return false
}

// BranchForWorkflow derives the default branch name for a workflow identity.
// For issue/pr workflows the branch is issue-N / pr-N; for task workflows
// (workflow_id = "task-<slug>") the branch is the bare slug (§8 scenario 3:
// workflow_id=task-feat-auth, branch_name=feat-auth).
func BranchForWorkflow(workflowType store.WorkflowType, workflowID string) string {
	switch workflowType {
	case store.WorkflowIssue:
		return "issue-" + strings.TrimPrefix(workflowID, "issue-")
	case store.WorkflowPR:
		return "pr-" + strings.TrimPrefix(workflowID, "pr-")
	default:
		return strings.TrimPrefix(workflowID, "task-")
	}
}

// Ensure implements Ensure-for-workflow (§4.3): find-or-create the single
// active environment for (codebase, type, id), reusing a PR's linked issue
// worktree when applicable.
func (m *Manager) Ensure(ctx context.Context, p EnsureParams) (*store.IsolationEnvironment, error) {
	if existing, err := m.envs.FindByWorkflow(ctx, p.CodebaseID, p.WorkflowType, p.WorkflowID); err == nil {
		g := newGitRunner(p.CanonicalRepoPath)
		if g.isValidWorktree(ctx, existing.WorkingPath) {
			return existing, nil
		}
		slog.Warn("isolation environment path no longer a valid worktree, recreating",
			"env_id", existing.ID, "path", existing.WorkingPath)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find by workflow: %w", err)
	}

	if p.WorkflowType == store.WorkflowPR {
		for _, issueNum := range p.RelatedIssues {
			env, err := m.envs.FindActiveByRelatedIssue(ctx, p.CodebaseID, issueNum)
			if err == nil {
				slog.Info("reusing worktree from issue", "issue", issueNum, "env_id", env.ID)
				meta := store.Metadata{"pr_number": p.WorkflowID}
				if err := m.envs.MergeMetadata(ctx, env.ID, meta); err != nil {
					return nil, fmt.Errorf("annotate reused environment: %w", err)
				}
				env.Metadata["pr_number"] = p.WorkflowID
				return env, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("find active by related issue: %w", err)
			}
		}
	}

	return m.create(ctx, p)
}

func (m *Manager) create(ctx context.Context, p EnsureParams) (*store.IsolationEnvironment, error) {
	if err := m.enforceLimit(ctx, p.CodebaseID, p.CanonicalRepoPath); err != nil {
		return nil, err
	}

	branch := BranchForWorkflow(p.WorkflowType, p.WorkflowID)
	if !ValidBranchName(branch) {
		return nil, fmt.Errorf("derived branch name %q is invalid", branch)
	}
	path := WorkingPath(p.CanonicalRepoPath, branch)

	g := newGitRunner(p.CanonicalRepoPath)
	var err error
	if p.BranchHint != "" {
		err = g.addWorktreeExistingBranch(ctx, path, p.BranchHint, p.BaseSHA)
	} else {
		err = g.addWorktree(ctx, path, branch, "")
	}
	if err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	meta := store.Metadata{}
	if len(p.RelatedIssues) > 0 {
		issues := make([]any, len(p.RelatedIssues))
		for i, n := range p.RelatedIssues {
			issues[i] = n
		}
		meta["related_issues"] = issues
	}

	env := &store.IsolationEnvironment{
		CodebaseID:        p.CodebaseID,
		WorkflowType:      p.WorkflowType,
		WorkflowID:        p.WorkflowID,
		Provider:          "worktree",
		WorkingPath:       path,
		BranchName:        branch,
		Status:            store.EnvActive,
		CreatedByPlatform: p.CreatedByPlatform,
		Metadata:          meta,
	}
	if err := m.envs.Create(ctx, env); err != nil {
		return nil, fmt.Errorf("persist isolation environment: %w", err)
	}
	return env, nil
}

// enforceLimit implements Enforce-limit / Cleanup-to-make-room (§4.3): if
// the codebase is at capacity, run merged-branch cleanup once and retry.
func (m *Manager) enforceLimit(ctx context.Context, codebaseID, canonicalRepoPath string) error {
	active, err := m.envs.ListActive(ctx, codebaseID)
	if err != nil {
		return fmt.Errorf("list active environments: %w", err)
	}
	if len(active) < m.maxWorktreesPerCodebase {
		return nil
	}
	if m.cleanup == nil {
		return m.limitError(active)
	}

	removed, err := m.cleanup.CleanupMerged(ctx, codebaseID, canonicalRepoPath)
	if err != nil {
		slog.Error("cleanup-to-make-room failed", "codebase_id", codebaseID, "error", err)
	}
	if removed > 0 {
		active, err = m.envs.ListActive(ctx, codebaseID)
		if err != nil {
			return fmt.Errorf("list active environments after cleanup: %w", err)
		}
	}
	if len(active) >= m.maxWorktreesPerCodebase {
		return m.limitError(active)
	}
	return nil
}

func (m *Manager) limitError(active []*store.IsolationEnvironment) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "worktree limit reached: %d/%d active\n", len(active), m.maxWorktreesPerCodebase)
	for _, e := range active {
		fmt.Fprintf(&sb, "  - %s (%s)\n", e.BranchName, e.WorkflowID)
	}
	return fmt.Errorf("%w: %s", ErrLimitReached, sb.String())
}

// Destroy implements the Destroy operation (§4.3) for an environment row the
// caller has already resolved.
func (m *Manager) Destroy(ctx context.Context, env *store.IsolationEnvironment, p DestroyParams) error {
	exists := pathExists(env.WorkingPath)

	if exists && !p.Force {
		g := newGitRunner(filepath.Dir(filepath.Dir(env.WorkingPath)))
		if g.hasUncommittedChanges(ctx, env.WorkingPath) {
			return ErrUncommittedChanges
		}
	}

	if exists {
		canonical := p.CanonicalRepoPath
		if canonical == "" {
			canonical = filepath.Dir(filepath.Dir(env.WorkingPath))
		}
		g := newGitRunner(canonical)
		if err := g.removeWorktree(ctx, env.WorkingPath, p.Force); err != nil {
			return fmt.Errorf("remove worktree: %w", err)
		}
		branch := p.BranchName
		if branch == "" {
			branch = env.BranchName
		}
		if branch != "" {
			if err := g.deleteBranch(ctx, branch); err != nil {
				slog.Warn("failed to delete branch after worktree removal", "branch", branch, "error", err)
			}
		}
	} else if p.BranchName != "" && p.CanonicalRepoPath != "" {
		g := newGitRunner(p.CanonicalRepoPath)
		if err := g.deleteBranch(ctx, p.BranchName); err != nil {
			slog.Warn("failed to delete branch for already-removed worktree", "branch", p.BranchName, "error", err)
		}
	}

	if err := m.envs.UpdateStatus(ctx, env.ID, store.EnvDestroyed); err != nil {
		return fmt.Errorf("mark environment destroyed: %w", err)
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListWorktrees returns the ground-truth worktree paths and branches for
// repoDir, as reported by `git worktree list` — used by `/worktree
// orphans` to surface entries the database does not know about.
func ListWorktrees(ctx context.Context, repoDir string) (map[string]string, error) {
	return newGitRunner(repoDir).listWorktrees(ctx)
}

// ParseWorkflowID extracts the numeric suffix from an issue-N / pr-N
// identity string.
func ParseWorkflowID(workflowID string) (int, error) {
	idx := strings.LastIndex(workflowID, "-")
	if idx < 0 {
		return 0, fmt.Errorf("no numeric suffix in %q", workflowID)
	}
	return strconv.Atoi(workflowID[idx+1:])
}

// MainBranch resolves the main branch of repoDir for merged-branch
// classification (§4.6) — exported for the Cleanup Scheduler.
func MainBranch(ctx context.Context, repoDir string) string {
	return newGitRunner(repoDir).mainBranch(ctx)
}

// MergedBranches returns the local branches of repoDir already merged into
// mainBranch — exported for the Cleanup Scheduler's merged classification.
func MergedBranches(ctx context.Context, repoDir, mainBranch string) ([]string, error) {
	return newGitRunner(repoDir).mergedBranches(ctx, mainBranch)
}

// HasUncommittedChanges reports whether the worktree at path is dirty —
// exported for the Cleanup Scheduler's protected classification.
func HasUncommittedChanges(ctx context.Context, path string) bool {
	return newGitRunner(path).hasUncommittedChanges(ctx, path)
}

// IsValidWorktree reports whether path is still a git-managed worktree of
// repoDir — exported for the Cleanup Scheduler's missing-path classification.
func IsValidWorktree(ctx context.Context, repoDir, path string) bool {
	return newGitRunner(repoDir).isValidWorktree(ctx, path)
}
