package store

import "context"

// Stores is the top-level container for the six typed accessors, handed to
// every component that needs persistence (Isolation Manager, Command
// Handler, Workflow Engine, Cleanup Scheduler).
type Stores struct {
	Codebases     CodebaseStore
	Conversations ConversationStore
	Sessions      SessionStore
	Templates     CommandTemplateStore
	Envs          IsolationEnvStore
	Runs          WorkflowRunStore
}

// CodebaseStore is the typed accessor over Codebase rows.
type CodebaseStore interface {
	Create(ctx context.Context, cb *Codebase) error
	Get(ctx context.Context, id string) (*Codebase, error)
	GetByName(ctx context.Context, name string) (*Codebase, error)
	GetByURL(ctx context.Context, url string) (*Codebase, error)
	GetByDefaultCwd(ctx context.Context, cwd string) (*Codebase, error)
	List(ctx context.Context) ([]*Codebase, error)
	// SetCommands replaces the whole commands map (I6 — callers merge in memory first).
	SetCommands(ctx context.Context, id string, commands map[string]CommandRef) error
	// Delete removes the Codebase row. Callers must have already nulled out
	// dependent Conversation/Session references (I5).
	Delete(ctx context.Context, id string) error
}

// ConversationStore is the typed accessor over Conversation rows.
type ConversationStore interface {
	Create(ctx context.Context, c *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	GetByPlatform(ctx context.Context, platformType, platformConversationID string) (*Conversation, error)
	// Update applies patch and returns ErrConversationNotFound when the
	// affected-row count is 0 — the canonical disappearance signal (§4.2, §7).
	Update(ctx context.Context, id string, patch ConversationPatch) error
	// ClearCodebaseRefs nulls codebase_id on every conversation referencing it (I5).
	ClearCodebaseRefs(ctx context.Context, codebaseID string) error
	Delete(ctx context.Context, id string) error
}

// SessionStore is the typed accessor over Session rows.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	GetActive(ctx context.Context, conversationID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// Deactivate marks the conversation's active session (if any) inactive,
	// enforcing I1 implicitly by never allowing two actives to coexist.
	Deactivate(ctx context.Context, conversationID string) error
	SetAssistantSessionID(ctx context.Context, id string, assistantSessionID string) error
	// MergeMetadata applies a JSON merge-patch (I7), never a replacement.
	MergeMetadata(ctx context.Context, id string, patch Metadata) error
	// ClearCodebaseRefs nulls codebase_id on every session referencing it (I5).
	ClearCodebaseRefs(ctx context.Context, codebaseID string) error
}

// CommandTemplateStore is the typed accessor over global Command Templates.
type CommandTemplateStore interface {
	Upsert(ctx context.Context, t *CommandTemplate) error
	Get(ctx context.Context, name string) (*CommandTemplate, error)
	List(ctx context.Context) ([]*CommandTemplate, error)
	Delete(ctx context.Context, name string) error
}

// IsolationEnvStore is the typed accessor over Isolation Environment rows.
type IsolationEnvStore interface {
	Create(ctx context.Context, e *IsolationEnvironment) error
	Get(ctx context.Context, id string) (*IsolationEnvironment, error)
	// FindByWorkflow returns the single active row for (codebaseID, type, workflowID),
	// satisfying I4, or ErrNotFound if none.
	FindByWorkflow(ctx context.Context, codebaseID string, workflowType WorkflowType, workflowID string) (*IsolationEnvironment, error)
	// FindActiveByRelatedIssue looks for an active env whose metadata's
	// related_issues list contains issueNumber (used by PR↔issue worktree reuse).
	FindActiveByRelatedIssue(ctx context.Context, codebaseID string, issueNumber int) (*IsolationEnvironment, error)
	ListActive(ctx context.Context, codebaseID string) ([]*IsolationEnvironment, error)
	MergeMetadata(ctx context.Context, id string, patch Metadata) error
	// UpdateStatus is idempotent per §4.2.
	UpdateStatus(ctx context.Context, id string, status EnvStatus) error
	// FindStaleEnvironments returns active, non-telegram rows older than
	// `days` whose linked conversations have had no activity in that window.
	FindStaleEnvironments(ctx context.Context, days int) ([]*IsolationEnvironment, error)
	// ReferencingConversations returns conversation ids whose isolation_env_id
	// points at envID — used to check "no conversation currently references the env".
	ReferencingConversations(ctx context.Context, envID string) ([]string, error)
}

// WorkflowRunStore is the typed accessor over Workflow Run rows.
type WorkflowRunStore interface {
	Create(ctx context.Context, r *WorkflowRun) error
	Get(ctx context.Context, id string) (*WorkflowRun, error)
	// GetRunning returns the single status='running' run for a conversation (I2), or ErrNotFound.
	GetRunning(ctx context.Context, conversationID string) (*WorkflowRun, error)
	AdvanceStep(ctx context.Context, id string, stepIndex int) error
	MergeMetadata(ctx context.Context, id string, patch Metadata) error
	// Complete sets status and completed_at; never throws on repeated calls (§7).
	Complete(ctx context.Context, id string, status RunStatus) error
	// TouchActivity updates last_activity_at; best-effort, errors are for the
	// caller to log, never to propagate (§4.5's activity heartbeat, §7).
	TouchActivity(ctx context.Context, id string) error
}
