package store

import "errors"

// ErrConversationNotFound is the canonical "conversation disappeared" signal:
// every mutating command in the Command Handler treats a zero-row UPDATE on
// a Conversation as this error (§4.2, §7).
var ErrConversationNotFound = errors.New("conversation not found")

// ErrNotFound is returned by single-row lookups (Codebase, Session,
// CommandTemplate, IsolationEnvironment, WorkflowRun) that find no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyActive signals a violation of I2 (one running Workflow Run per
// Conversation) or I4 (one active Isolation Environment per identity) caught
// at the store layer's precondition check.
var ErrAlreadyActive = errors.New("already active")
