package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// listClonedRepos walks {workspaceRoot}/{owner}/{repo} two-level
// directories, sorted alphabetically by "owner/repo" (§4.4, §8 scenario 2).
func listClonedRepos(workspaceRoot string) []string {
	var names []string
	owners, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return nil
	}
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		repos, err := os.ReadDir(filepath.Join(workspaceRoot, owner.Name()))
		if err != nil {
			continue
		}
		for _, repo := range repos {
			if !repo.IsDir() {
				continue
			}
			names = append(names, owner.Name()+"/"+repo.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (h *Handler) cmdRepos(ctx context.Context, conv *store.Conversation) Result {
	names := listClonedRepos(h.Config.WorkspaceRoot())
	if len(names) == 0 {
		return ok("no repositories cloned yet")
	}

	active := ""
	if conv.CodebaseID != nil {
		if cb, err := h.Stores.Codebases.Get(ctx, *conv.CodebaseID); err == nil {
			active = cb.Name
		}
	}

	var sb strings.Builder
	for _, name := range names {
		marker := "  "
		if name == active {
			marker = "* "
		}
		sb.WriteString(marker + name + "\n")
	}
	return ok(sb.String())
}

// resolveRepoSelector implements §4.4's resolution order: exact full path,
// exact repo name, prefix on full path, then prefix on repo name — first
// match wins, ties broken alphabetically (§8 scenario 2).
func resolveRepoSelector(names []string, selector string) (string, bool) {
	if idx, err := strconv.Atoi(selector); err == nil {
		if idx >= 1 && idx <= len(names) {
			return names[idx-1], true
		}
		return "", false
	}

	for _, n := range names {
		if n == selector {
			return n, true
		}
	}
	for _, n := range names {
		if strings.HasSuffix(n, "/"+selector) {
			return n, true
		}
	}
	for _, n := range names {
		if strings.HasPrefix(n, selector) {
			return n, true
		}
	}
	for _, n := range names {
		repo := n[strings.Index(n, "/")+1:]
		if strings.HasPrefix(repo, selector) {
			return n, true
		}
	}
	return "", false
}

func (h *Handler) cmdRepo(ctx context.Context, conv *store.Conversation, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /repo <#|name|prefix> [pull]")
	}
	names := listClonedRepos(h.Config.WorkspaceRoot())
	name, found := resolveRepoSelector(names, args[0])
	if !found {
		return fail(fmt.Sprintf("repository %q not found", args[0]))
	}

	parts := strings.SplitN(name, "/", 2)
	owner, repo := parts[0], parts[1]
	targetDir := filepath.Join(h.Config.WorkspaceRoot(), owner, repo)

	cb, err := h.Stores.Codebases.GetByDefaultCwd(ctx, targetDir)
	if err != nil {
		cb = &store.Codebase{
			Name:        name,
			DefaultCwd:  targetDir,
			AIAssistant: store.AssistantType(h.Config.DefaultAIAssistant),
			Commands:    map[string]store.CommandRef{},
		}
		if err := h.Stores.Codebases.Create(ctx, cb); err != nil {
			return fail(fmt.Sprintf("create repository record: %v", err))
		}
	}

	if len(args) > 1 && strings.EqualFold(args[1], "pull") {
		if out, err := runGitPull(ctx, targetDir); err != nil {
			return fail(fmt.Sprintf("pull failed: %v\n%s", err, out))
		}
	}

	loaded := loadCommandsRecursive(targetDir, ".archon/commands")
	if len(loaded) > 0 {
		for k, v := range loaded {
			cb.Commands[k] = v
		}
		_ = h.Stores.Codebases.SetCommands(ctx, cb.ID, cb.Commands)
	}

	return h.linkCodebase(ctx, conv, cb, fmt.Sprintf("switched to %s", name))
}

func (h *Handler) cmdRepoRemove(ctx context.Context, conv *store.Conversation, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /repo-remove <#|name|prefix>")
	}
	names := listClonedRepos(h.Config.WorkspaceRoot())
	name, found := resolveRepoSelector(names, args[0])
	if !found {
		return fail(fmt.Sprintf("repository %q not found", args[0]))
	}

	parts := strings.SplitN(name, "/", 2)
	targetDir := filepath.Join(h.Config.WorkspaceRoot(), parts[0], parts[1])

	for _, a := range args[1:] {
		if a == "--dry-run" {
			msg := fmt.Sprintf("would remove %s at %s", name, targetDir)
			if existing, err := h.Stores.Codebases.GetByDefaultCwd(ctx, targetDir); err == nil {
				msg += fmt.Sprintf(" (codebase %s)", existing.ID)
			}
			return ok(msg)
		}
	}

	cb, err := h.Stores.Codebases.GetByDefaultCwd(ctx, targetDir)
	if err == nil {
		if conv.CodebaseID != nil && *conv.CodebaseID == cb.ID {
			patch := store.ConversationPatch{ClearCodebase: true, ClearCwd: true}
			_ = h.Stores.Conversations.Update(ctx, conv.ID, patch)
			conv.CodebaseID, conv.Cwd = nil, nil
		}
		if err := h.Stores.Conversations.ClearCodebaseRefs(ctx, cb.ID); err != nil {
			return fail(fmt.Sprintf("unlink conversations: %v", err))
		}
		if err := h.Stores.Sessions.ClearCodebaseRefs(ctx, cb.ID); err != nil {
			return fail(fmt.Sprintf("unlink sessions: %v", err))
		}
		if err := h.Stores.Codebases.Delete(ctx, cb.ID); err != nil {
			return fail(fmt.Sprintf("delete repository record: %v", err))
		}
	}

	if err := os.RemoveAll(targetDir); err != nil {
		return fail(fmt.Sprintf("remove directory: %v", err))
	}

	return okModified(fmt.Sprintf("removed %s", name))
}
