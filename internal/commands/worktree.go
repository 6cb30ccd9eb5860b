package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/isolation"
	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdWorktree(ctx context.Context, conv *store.Conversation, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /worktree create|list|remove|cleanup|orphans|status")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "create":
		return h.worktreeCreate(ctx, conv, rest)
	case "list":
		return h.worktreeList(ctx, conv)
	case "remove":
		return h.worktreeRemove(ctx, conv, rest)
	case "cleanup":
		return h.worktreeCleanup(ctx, conv, rest)
	case "orphans":
		return h.worktreeOrphans(ctx, conv)
	case "status":
		return h.worktreeStatus(ctx, conv, rest)
	default:
		return fail(fmt.Sprintf("unknown /worktree subcommand %q", sub))
	}
}

func (h *Handler) worktreeCreate(ctx context.Context, conv *store.Conversation, args []string) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if conv.IsolationEnvID != nil {
		return fail("already using worktree")
	}
	if len(args) == 0 {
		return fail("usage: /worktree create <branch> | --issue <n> | --pr <n> --related <n,n,...>")
	}

	wt, workflowID, related, errRes := parseWorktreeCreateArgs(args)
	if errRes != nil {
		return *errRes
	}

	// BranchHint is reserved for attaching to a branch that already exists
	// in the repo (e.g. a same-repo PR's head branch); none of these three
	// forms supply one — BranchForWorkflow derives the branch name from
	// (workflowType, workflowID) and Ensure creates it fresh.
	env, err := h.Isolation.Ensure(ctx, isolationParams(cb, conv, wt, workflowID, "", related, conv.PlatformType))
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return fail("branch already exists")
		}
		if errors.Is(err, isolation.ErrLimitReached) {
			return fail(err.Error())
		}
		return fail(fmt.Sprintf("create worktree: %v", err))
	}

	// Preserves the active session; unlike /setcwd or /repo, a worktree
	// switch does not deactivate the in-flight assistant context (§4.4).
	patch := store.ConversationPatch{IsolationEnvID: &env.ID, Cwd: &env.WorkingPath}
	if err := h.Stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	conv.IsolationEnvID = &env.ID
	conv.Cwd = &env.WorkingPath

	return okModified(fmt.Sprintf("worktree %s created at %s", env.BranchName, env.WorkingPath))
}

// parseWorktreeCreateArgs recognizes the three /worktree create forms:
//
//	/worktree create <branch>                       -> task
//	/worktree create --issue <n>                    -> issue, reusable by a later --pr
//	/worktree create --pr <n> --related <n,n2,...>  -> pr, reuses an issue's worktree when
//	  one of --related's issues already has an active environment (§4.3).
//
// The derived branch name (issue-N / pr-N / the user's own branch for task)
// comes from isolation.BranchForWorkflow(wt, workflowID); it is not
// independently user-settable here.
func parseWorktreeCreateArgs(args []string) (wt store.WorkflowType, workflowID string, related []int, errRes *Result) {
	switch args[0] {
	case "--issue":
		if len(args) < 2 {
			r := fail("usage: /worktree create --issue <n>")
			return "", "", nil, &r
		}
		n := args[1]
		issueNum, err := strconv.Atoi(n)
		if err != nil {
			r := fail(fmt.Sprintf("invalid issue number %q", n))
			return "", "", nil, &r
		}
		// Self-tags the environment's related_issues metadata so a later
		// `/worktree create --pr <n> --related <n>` can find and reuse it.
		return store.WorkflowIssue, "issue-" + n, []int{issueNum}, nil
	case "--pr":
		if len(args) < 2 {
			r := fail("usage: /worktree create --pr <n> --related <n,n2,...>")
			return "", "", nil, &r
		}
		n := args[1]
		var relatedIssues []int
		rest := args[2:]
		if len(rest) >= 2 && rest[0] == "--related" {
			for _, part := range strings.Split(rest[1], ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				v, err := strconv.Atoi(part)
				if err != nil {
					r := fail(fmt.Sprintf("invalid --related issue number %q", part))
					return "", "", nil, &r
				}
				relatedIssues = append(relatedIssues, v)
			}
		}
		return store.WorkflowPR, "pr-" + n, relatedIssues, nil
	default:
		branch := args[0]
		if !isolation.ValidBranchName(branch) {
			r := fail("branch name must match [A-Za-z0-9_-]+")
			return "", "", nil, &r
		}
		return store.WorkflowTask, "task-" + branch, nil, nil
	}
}

// isolationParams is a small constructor to keep call sites in worktree.go
// and the workflow engine consistent.
func isolationParams(cb *store.Codebase, conv *store.Conversation, wt store.WorkflowType, workflowID, branchHint string, relatedIssues []int, platform string) isolation.EnsureParams {
	return isolation.EnsureParams{
		CodebaseID:        cb.ID,
		CanonicalRepoPath: cb.DefaultCwd,
		WorkflowType:      wt,
		WorkflowID:        workflowID,
		RelatedIssues:     relatedIssues,
		CreatedByPlatform: platform,
		BranchHint:        branchHint,
	}
}

func (h *Handler) worktreeList(ctx context.Context, conv *store.Conversation) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	envs, err := h.Stores.Envs.ListActive(ctx, cb.ID)
	if err != nil {
		return fail(fmt.Sprintf("list worktrees: %v", err))
	}
	if len(envs) == 0 {
		return ok("no active worktrees")
	}

	var sb strings.Builder
	for _, e := range envs {
		marker := "  "
		if conv.IsolationEnvID != nil && *conv.IsolationEnvID == e.ID {
			marker = "* "
		}
		fmt.Fprintf(&sb, "%s%s (%s)\n", marker, e.BranchName, e.WorkflowID)
	}
	return ok(sb.String())
}

func (h *Handler) worktreeRemove(ctx context.Context, conv *store.Conversation, args []string) Result {
	if conv.IsolationEnvID == nil {
		return fail("not using a worktree")
	}
	force := false
	dryRun := false
	for _, a := range args {
		switch a {
		case "--force":
			force = true
		case "--dry-run":
			dryRun = true
		}
	}

	env, err := h.Stores.Envs.Get(ctx, *conv.IsolationEnvID)
	if err != nil {
		return fail(fmt.Sprintf("load worktree: %v", err))
	}

	cb, err := h.Stores.Codebases.Get(ctx, env.CodebaseID)
	if err != nil {
		return fail(fmt.Sprintf("load repository: %v", err))
	}

	// Supplemented feature: a dry run reports what would happen without
	// touching the filesystem or the database.
	if dryRun {
		msg := fmt.Sprintf("would remove worktree %s (env %s) at %s", env.BranchName, env.ID, env.WorkingPath)
		if isolation.HasUncommittedChanges(ctx, env.WorkingPath) {
			if force {
				msg += " (uncommitted changes would be discarded)"
			} else {
				msg += " (blocked: uncommitted changes; use --force to discard)"
			}
		}
		return ok(msg)
	}

	if err := h.Isolation.Destroy(ctx, env, isolation.DestroyParams{Force: force, CanonicalRepoPath: cb.DefaultCwd}); err != nil {
		if errors.Is(err, isolation.ErrUncommittedChanges) {
			return fail("uncommitted changes (use --force to discard)")
		}
		return fail(fmt.Sprintf("remove worktree: %v", err))
	}

	patch := store.ConversationPatch{ClearEnv: true, Cwd: &cb.DefaultCwd}
	if err := h.Stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	conv.IsolationEnvID = nil
	conv.Cwd = &cb.DefaultCwd
	if err := h.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}

	return okModified(fmt.Sprintf("worktree %s removed", env.BranchName))
}

func (h *Handler) worktreeCleanup(ctx context.Context, conv *store.Conversation, args []string) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if h.Cleanup == nil {
		return fail("cleanup scheduler not configured")
	}
	if len(args) == 0 {
		return fail("usage: /worktree cleanup merged|stale")
	}

	var report CleanupReport
	var err error
	switch args[0] {
	case "merged":
		report, err = h.Cleanup.RunMerged(ctx, cb.ID, cb.DefaultCwd)
	case "stale":
		report, err = h.Cleanup.RunStale(ctx, cb.ID, cb.DefaultCwd)
	default:
		return fail("usage: /worktree cleanup merged|stale")
	}
	if err != nil {
		return fail(fmt.Sprintf("cleanup failed: %v", err))
	}

	return ok(formatCleanupReport(report))
}

func formatCleanupReport(r CleanupReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "removed: %d\n", len(r.Removed))
	for _, s := range r.Skipped {
		fmt.Fprintf(&sb, "skipped %s: %s\n", s.ID, s.Reason)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "error %s: %s\n", e.ID, e.Error)
	}
	return sb.String()
}

func (h *Handler) worktreeOrphans(ctx context.Context, conv *store.Conversation) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	groundTruth, err := isolation.ListWorktrees(ctx, cb.DefaultCwd)
	if err != nil {
		return fail(fmt.Sprintf("list git worktrees: %v", err))
	}

	known, err := h.Stores.Envs.ListActive(ctx, cb.ID)
	if err != nil {
		return fail(fmt.Sprintf("list known worktrees: %v", err))
	}
	knownPaths := map[string]bool{}
	for _, e := range known {
		knownPaths[e.WorkingPath] = true
	}

	var sb strings.Builder
	paths := make([]string, 0, len(groundTruth))
	for p := range groundTruth {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		tag := ""
		if !knownPaths[p] {
			tag = " (orphan — not in database)"
		}
		fmt.Fprintf(&sb, "%s @ %s%s\n", p, groundTruth[p], tag)
	}
	if sb.Len() == 0 {
		return ok("no worktrees found")
	}
	return ok(sb.String())
}

// worktreeStatus is the supplemented `/worktree status <id>` read-only
// inspection command (SPEC_FULL.md §7).
func (h *Handler) worktreeStatus(ctx context.Context, conv *store.Conversation, args []string) Result {
	id := ""
	if len(args) > 0 {
		id = args[0]
	} else if conv.IsolationEnvID != nil {
		id = *conv.IsolationEnvID
	}
	if id == "" {
		return fail("usage: /worktree status <id> (or be using a worktree)")
	}

	env, err := h.Stores.Envs.Get(ctx, id)
	if err != nil {
		return fail(fmt.Sprintf("load worktree: %v", err))
	}

	refs, err := h.Stores.Envs.ReferencingConversations(ctx, env.ID)
	if err != nil {
		return fail(fmt.Sprintf("load references: %v", err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "id: %s\n", env.ID)
	fmt.Fprintf(&sb, "branch: %s\n", env.BranchName)
	fmt.Fprintf(&sb, "path: %s\n", env.WorkingPath)
	fmt.Fprintf(&sb, "status: %s\n", env.Status)
	fmt.Fprintf(&sb, "workflow: %s/%s\n", env.WorkflowType, env.WorkflowID)
	fmt.Fprintf(&sb, "created by: %s\n", env.CreatedByPlatform)
	fmt.Fprintf(&sb, "referencing conversations: %d\n", len(refs))
	return ok(sb.String())
}
