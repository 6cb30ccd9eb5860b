// Package store defines the six entities of §3 and the typed accessors over
// them. Metadata bags use merge-patch semantics (I7) at the implementation
// layer (internal/store/pg), never full replacement.
package store

import "time"

// AssistantType identifies which external AI assistant CLI a Codebase,
// Conversation or Session is bound to.
type AssistantType string

const (
	AssistantClaude AssistantType = "claude"
	AssistantCodex  AssistantType = "codex"
)

// WorkflowType identifies the kind of logical workflow an Isolation
// Environment was created for.
type WorkflowType string

const (
	WorkflowIssue WorkflowType = "issue"
	WorkflowPR    WorkflowType = "pr"
	WorkflowTask  WorkflowType = "task"
)

// EnvStatus is the lifecycle state of an Isolation Environment.
type EnvStatus string

const (
	EnvActive    EnvStatus = "active"
	EnvDestroyed EnvStatus = "destroyed"
)

// RunStatus is the lifecycle state of a Workflow Run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CommandRef is one entry of a Codebase's `commands` map (I6): a named
// prompt file and its human-readable description.
type CommandRef struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Metadata is an open-ended, merge-patch-updatable JSON bag (§9's "typed sum
// where possible, map<string,value> where open-ended").
type Metadata map[string]any

// Codebase is a cloned repository known to the system (§3).
type Codebase struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"` // "owner/repo"
	RepositoryURL  string            `json:"repository_url,omitempty"`
	DefaultCwd     string            `json:"default_cwd"`
	AIAssistant    AssistantType     `json:"ai_assistant_type"`
	Commands       map[string]CommandRef `json:"commands"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Conversation is the per-platform chat/thread the system holds state in
// (§3). Uniqueness: (PlatformType, PlatformConversationID).
type Conversation struct {
	ID                     string        `json:"id"`
	PlatformType           string        `json:"platform_type"`
	PlatformConversationID string        `json:"platform_conversation_id"`
	AIAssistant            AssistantType `json:"ai_assistant_type"`
	CodebaseID             *string       `json:"codebase_id,omitempty"`
	Cwd                    *string       `json:"cwd,omitempty"`
	IsolationEnvID         *string       `json:"isolation_env_id,omitempty"`
	LastActivityAt         time.Time     `json:"last_activity_at"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// ConversationPatch carries the fields updateConversation is allowed to
// change; nil fields are left untouched (§4.2).
type ConversationPatch struct {
	AIAssistant    *AssistantType
	CodebaseID     *string
	ClearCodebase  bool
	Cwd            *string
	ClearCwd       bool
	IsolationEnvID *string
	ClearEnv       bool
	LastActivityAt *time.Time
}

// Session is an assistant-side context resumable via AssistantSessionID
// (§3). At most one Session per Conversation has Active=true (I1).
type Session struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	CodebaseID        *string   `json:"codebase_id,omitempty"`
	AIAssistant       AssistantType `json:"ai_assistant_type"`
	AssistantSessionID string   `json:"assistant_session_id,omitempty"`
	Active            bool      `json:"active"`
	Metadata          Metadata  `json:"metadata"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

// CommandTemplate is a global named prompt invoked as /<name> (§3).
type CommandTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsolationEnvironment is a git worktree backing one logical workflow (§3,
// §4.3). Addressed either by identity (CodebaseID, WorkflowType, WorkflowID)
// or by its own ID.
type IsolationEnvironment struct {
	ID                string       `json:"id"`
	CodebaseID        string       `json:"codebase_id"`
	WorkflowType      WorkflowType `json:"workflow_type"`
	WorkflowID        string       `json:"workflow_id"`
	Provider          string       `json:"provider"` // default "worktree"
	WorkingPath       string       `json:"working_path"`
	BranchName        string       `json:"branch_name"`
	Status            EnvStatus    `json:"status"`
	CreatedByPlatform string       `json:"created_by_platform"`
	Metadata          Metadata     `json:"metadata"`
	CreatedAt         time.Time    `json:"created_at"`
}

// WorkflowRun tracks one execution of a declarative workflow (§3, §4.5).
// At most one run per Conversation has Status=running (I2).
type WorkflowRun struct {
	ID                string    `json:"id"`
	WorkflowName      string    `json:"workflow_name"`
	ConversationID    string    `json:"conversation_id"`
	CodebaseID        *string   `json:"codebase_id,omitempty"`
	CurrentStepIndex  int       `json:"current_step_index"`
	Status            RunStatus `json:"status"`
	UserMessage       string    `json:"user_message"`
	Metadata          Metadata  `json:"metadata"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}
