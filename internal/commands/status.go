package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/isolation"
	"github.com/nextlevelbuilder/archon/internal/store"
)

// repoContext renders "owner/repo @ branch [(worktree)]" plus the worktree
// breakdown used by /status and /getcwd.
func (h *Handler) repoContext(ctx context.Context, conv *store.Conversation) string {
	if conv.CodebaseID == nil {
		return "no repository linked"
	}
	cb, err := h.Stores.Codebases.Get(ctx, *conv.CodebaseID)
	if err != nil {
		return fmt.Sprintf("repository link broken: %v", err)
	}

	branch := "unknown"
	worktreeTag := ""
	cwd := cb.DefaultCwd
	if conv.Cwd != nil {
		cwd = *conv.Cwd
	}
	if conv.IsolationEnvID != nil {
		env, err := h.Stores.Envs.Get(ctx, *conv.IsolationEnvID)
		if err == nil && env.Status == store.EnvActive {
			branch = env.BranchName
			worktreeTag = " (worktree)"
			cwd = env.WorkingPath
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("repository link broken: %v", err)
		} else {
			// I3: orphaned reference — fall back to git-derived branch
			// detection rather than auto-repairing.
			branch = gitBranchFallback(cwd)
		}
	} else if isolation.IsWorktreePath(cwd) {
		branch = gitBranchFallback(cwd)
		worktreeTag = " (worktree)"
	} else {
		branch = gitBranchFallback(cwd)
	}

	return fmt.Sprintf("%s @ %s%s", cb.Name, branch, worktreeTag)
}

func (h *Handler) cmdStatus(ctx context.Context, conv *store.Conversation) Result {
	var sb strings.Builder
	fmt.Fprintf(&sb, "platform: %s\n", conv.PlatformType)
	fmt.Fprintf(&sb, "assistant: %s\n", conv.AIAssistant)
	fmt.Fprintf(&sb, "repo: %s\n", h.repoContext(ctx, conv))

	sess, err := h.Stores.Sessions.GetActive(ctx, conv.ID)
	if err == nil {
		fmt.Fprintf(&sb, "session: active (resumable)\n")
		_ = sess
	} else if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(&sb, "session: none\n")
	} else {
		fmt.Fprintf(&sb, "session: error (%v)\n", err)
	}

	if conv.CodebaseID != nil {
		envs, err := h.Stores.Envs.ListActive(ctx, *conv.CodebaseID)
		if err == nil {
			fmt.Fprintf(&sb, "active worktrees: %d\n", len(envs))
		}
	}

	return ok(sb.String())
}

func (h *Handler) cmdGetCwd(ctx context.Context, conv *store.Conversation) Result {
	return ok(h.repoContext(ctx, conv))
}
