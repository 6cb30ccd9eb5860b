// Package commands implements the Command Handler (§4.4): deterministic,
// synchronous slash-command dispatch that mutates conversation/codebase/
// worktree state without invoking an AI assistant.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/archon/internal/config"
	"github.com/nextlevelbuilder/archon/internal/isolation"
	"github.com/nextlevelbuilder/archon/internal/store"
)

// WorkflowSummary is the minimal description the Command Handler needs to
// render `/workflow list`.
type WorkflowSummary struct {
	Name        string
	Description string
}

// ReloadReport is returned by WorkflowRegistry.Reload for `/workflow reload`.
type ReloadReport struct {
	Loaded int
	Errors []string
}

// WorkflowRegistry is the subset of the Workflow Engine the Command Handler
// depends on — implemented by internal/workflow without creating an import
// cycle back into this package. root is the linked codebase's default_cwd,
// since workflows are discovered per-repo (§4.5).
type WorkflowRegistry interface {
	List(root string) []WorkflowSummary
	Reload(root string) ReloadReport
}

// CleanupReport mirrors §4.6's output contract.
type CleanupReport struct {
	Removed []string
	Skipped []CleanupSkip
	Errors  []CleanupError
}

type CleanupSkip struct {
	ID     string
	Reason string
}

type CleanupError struct {
	ID    string
	Error string
}

// CleanupRunner is the subset of the Cleanup Scheduler the Command Handler
// depends on for `/worktree cleanup merged|stale`.
type CleanupRunner interface {
	RunMerged(ctx context.Context, codebaseID, canonicalRepoPath string) (CleanupReport, error)
	RunStale(ctx context.Context, codebaseID, canonicalRepoPath string) (CleanupReport, error)
}

// Handler implements the Command Handler.
type Handler struct {
	Stores    *store.Stores
	Isolation *isolation.Manager
	Config    *config.Config
	Workflows WorkflowRegistry
	Cleanup   CleanupRunner
}

// New constructs a Handler. Workflows and Cleanup may be nil in contexts
// that don't wire those subsystems (e.g. focused tests).
func New(stores *store.Stores, iso *isolation.Manager, cfg *config.Config, workflows WorkflowRegistry, cleanup CleanupRunner) *Handler {
	return &Handler{Stores: stores, Isolation: iso, Config: cfg, Workflows: workflows, Cleanup: cleanup}
}

// Handle dispatches text against conv. text must begin with '/'; callers
// (the orchestrator) are responsible for routing non-command text elsewhere.
func (h *Handler) Handle(ctx context.Context, conv *store.Conversation, text string) Result {
	name, args, ok := ParseCommand(text)
	if !ok {
		return fail("not a command")
	}

	h.autoLink(ctx, conv)

	switch strings.ToLower(name) {
	case "help":
		return h.cmdHelp()
	case "status":
		return h.cmdStatus(ctx, conv)
	case "getcwd":
		return h.cmdGetCwd(ctx, conv)
	case "setcwd":
		return h.cmdSetCwd(ctx, conv, args)
	case "clone":
		return h.cmdClone(ctx, conv, args)
	case "repos":
		return h.cmdRepos(ctx, conv)
	case "repo":
		return h.cmdRepo(ctx, conv, args)
	case "repo-remove":
		return h.cmdRepoRemove(ctx, conv, args)
	case "command-set":
		return h.cmdCommandSet(ctx, conv, args)
	case "load-commands":
		return h.cmdLoadCommands(ctx, conv, args)
	case "commands":
		return h.cmdCommands(ctx, conv)
	case "template-add":
		return h.cmdTemplateAdd(ctx, args)
	case "templates":
		return h.cmdTemplates(ctx)
	case "template-delete":
		return h.cmdTemplateDelete(ctx, args)
	case "reset":
		return h.cmdReset(ctx, conv, false)
	case "reset-context":
		return h.cmdReset(ctx, conv, true)
	case "worktree":
		return h.cmdWorktree(ctx, conv, args)
	case "workflow":
		return h.cmdWorkflow(ctx, conv, args)
	case "init":
		return h.cmdInit(ctx, conv)
	default:
		return h.cmdInvoke(ctx, conv, name, args)
	}
}

// catalogueCommands is the set of names Handle dispatches to a built-in
// command rather than falling through to cmdInvoke's template lookup — the
// orchestrator uses this to decide whether a leading-"/" message belongs to
// the Command Handler or to the Workflow Engine's routing (§4.5 step 2).
var catalogueCommands = map[string]bool{
	"help": true, "status": true, "getcwd": true, "setcwd": true,
	"clone": true, "repos": true, "repo": true, "repo-remove": true,
	"command-set": true, "load-commands": true, "commands": true,
	"template-add": true, "templates": true, "template-delete": true,
	"reset": true, "reset-context": true, "worktree": true, "workflow": true,
	"init": true,
}

// IsCatalogueCommand reports whether name dispatches to a built-in Command
// Handler command (as opposed to a per-codebase or global template name).
func IsCatalogueCommand(name string) bool {
	return catalogueCommands[strings.ToLower(name)]
}

// autoLink implements §4.4's auto-linking: before any command is dispatched,
// if conversation.codebase_id is null but conversation.cwd matches a Codebase's
// default_cwd, link it. Best-effort: errors (including ConversationNotFound)
// are logged and ignored, never surfaced to the caller. Per §9's resolved
// open question, auto-link never runs when cwd was set explicitly away from
// every known default_cwd — it only fires when the codebase lookup matches
// exactly, so an explicit /setcwd to an unrelated path is left alone.
func (h *Handler) autoLink(ctx context.Context, conv *store.Conversation) {
	if conv.CodebaseID != nil || conv.Cwd == nil {
		return
	}
	cb, err := h.Stores.Codebases.GetByDefaultCwd(ctx, *conv.Cwd)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("auto-link lookup failed", "conversation_id", conv.ID, "error", err)
		}
		return
	}
	patch := store.ConversationPatch{CodebaseID: &cb.ID}
	if err := h.Stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		slog.Warn("auto-link update failed", "conversation_id", conv.ID, "error", err)
		return
	}
	conv.CodebaseID = &cb.ID
}

// touchActivity is a small best-effort helper shared by command
// implementations that should bump last_activity_at without failing the
// surrounding command on a transient DB error.
func (h *Handler) touchActivity(ctx context.Context, conv *store.Conversation) {
	now := time.Now().UTC()
	if err := h.Stores.Conversations.Update(ctx, conv.ID, store.ConversationPatch{LastActivityAt: &now}); err != nil {
		slog.Warn("failed to touch conversation activity", "conversation_id", conv.ID, "error", err)
	}
}

// requireCodebase fetches the linked Codebase or returns a failure Result
// describing the missing precondition.
func (h *Handler) requireCodebase(ctx context.Context, conv *store.Conversation) (*store.Codebase, *Result) {
	if conv.CodebaseID == nil {
		r := fail("no repository linked to this conversation; use /clone or /repo first")
		return nil, &r
	}
	cb, err := h.Stores.Codebases.Get(ctx, *conv.CodebaseID)
	if err != nil {
		r := fail(fmt.Sprintf("linked repository not found: %v", err))
		return nil, &r
	}
	return cb, nil
}
