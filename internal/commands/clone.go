package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/commands/bundled"
	"github.com/nextlevelbuilder/archon/internal/store"
)

// normalizeCloneURL strips a trailing ".git" and rewrites the SSH shorthand
// `git@github.com:owner/repo` to the HTTPS form (§8 scenario 1).
func normalizeCloneURL(raw string) string {
	url := strings.TrimSuffix(raw, ".git")
	if strings.HasPrefix(url, "git@github.com:") {
		url = "https://github.com/" + strings.TrimPrefix(url, "git@github.com:")
	}
	return url
}

// ownerRepoFromURL extracts "owner/repo" from a normalized https URL.
func ownerRepoFromURL(url string) (owner, repo string, ok bool) {
	trimmed := strings.TrimPrefix(url, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	return parts[len(parts)-2], parts[len(parts)-1], true
}

// authenticatedCloneURL injects GH_TOKEN into the clone URL when available
// (§8 scenario 1): https://github.com/x/y → https://{token}@github.com/x/y.
func authenticatedCloneURL(url, token string) string {
	if token == "" || !strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + token + "@" + strings.TrimPrefix(url, "https://")
}

func (h *Handler) cmdClone(ctx context.Context, conv *store.Conversation, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /clone <url>")
	}

	normalized := normalizeCloneURL(args[0])
	owner, repo, ok := ownerRepoFromURL(normalized)
	if !ok {
		return fail("could not parse owner/repo from URL")
	}
	name := owner + "/" + repo
	targetDir := filepath.Join(h.Config.WorkspaceRoot(), owner, repo)

	if dirExists(targetDir) {
		cb, err := h.Stores.Codebases.GetByURL(ctx, normalized)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fail(fmt.Sprintf("directory %s already exists but is not a known repository", targetDir))
			}
			return fail(err.Error())
		}
		return h.linkCodebase(ctx, conv, cb, "already cloned, linked existing repository")
	}

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return fail(fmt.Sprintf("create parent directory: %v", err))
	}

	cloneURL := authenticatedCloneURL(normalized, h.Config.GitHubToken)
	cmd := exec.CommandContext(ctx, "git", "clone", cloneURL, targetDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail(fmt.Sprintf("clone failed: %v\n%s", err, strings.TrimSpace(string(out))))
	}

	assistant := store.AssistantType(h.Config.DefaultAIAssistant)
	if dirExists(filepath.Join(targetDir, ".codex")) {
		assistant = store.AssistantCodex
	} else if dirExists(filepath.Join(targetDir, ".claude")) {
		assistant = store.AssistantClaude
	}

	cb := &store.Codebase{
		Name:          name,
		RepositoryURL: normalized,
		DefaultCwd:    targetDir,
		AIAssistant:   assistant,
		Commands:      map[string]store.CommandRef{},
	}
	if err := h.Stores.Codebases.Create(ctx, cb); err != nil {
		return fail(fmt.Sprintf("persist repository: %v", err))
	}

	seedBundledDefaults(targetDir)
	loaded := loadCommandsRecursive(targetDir, ".archon/commands")
	if len(loaded) > 0 {
		cb.Commands = loaded
		if err := h.Stores.Codebases.SetCommands(ctx, cb.ID, cb.Commands); err != nil {
			slog.Warn("failed to persist auto-loaded commands", "codebase_id", cb.ID, "error", err)
		}
	}

	return h.linkCodebase(ctx, conv, cb, fmt.Sprintf("cloned %s", name))
}

// linkCodebase links conv to cb, resets its cwd to the canonical path, and
// deactivates its active session (§4.4's /clone and /repo contract).
func (h *Handler) linkCodebase(ctx context.Context, conv *store.Conversation, cb *store.Codebase, message string) Result {
	if err := h.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	patch := store.ConversationPatch{
		CodebaseID: &cb.ID,
		Cwd:        &cb.DefaultCwd,
	}
	if err := h.Stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	conv.CodebaseID = &cb.ID
	conv.Cwd = &cb.DefaultCwd
	return okModified(message)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// seedBundledDefaults copies bundled default commands/workflows into a newly
// cloned repository's `.archon/commands` and `.archon/workflows`, skipping
// any file that already exists so a repository's own defaults always win
// (§4.4).
func seedBundledDefaults(targetDir string) {
	seedBundledDir(targetDir, bundled.CommandsDir, filepath.Join(".archon", "commands"))
	seedBundledDir(targetDir, bundled.WorkflowsDir, filepath.Join(".archon", "workflows"))
}

// seedBundledDir copies every file directly under bundledSubdir in
// bundled.FS into {targetDir}/{destRelDir}, using O_EXCL so an existing file
// is left untouched rather than overwritten.
func seedBundledDir(targetDir, bundledSubdir, destRelDir string) {
	entries, err := bundled.FS.ReadDir(bundledSubdir)
	if err != nil {
		slog.Warn("bundled defaults: read embedded directory failed", "dir", bundledSubdir, "error", err)
		return
	}

	destDir := filepath.Join(targetDir, destRelDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		slog.Warn("bundled defaults: create destination directory failed", "dir", destDir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := seedBundledFile(bundledSubdir, destDir, entry.Name()); err != nil {
			slog.Warn("bundled defaults: seed file failed", "file", entry.Name(), "error", err)
		}
	}
}

func seedBundledFile(bundledSubdir, destDir, name string) error {
	dstPath := filepath.Join(destDir, name)

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	content, err := bundled.FS.ReadFile(filepath.Join(bundledSubdir, name))
	if err != nil {
		os.Remove(dstPath)
		return err
	}
	_, err = f.Write(content)
	return err
}
