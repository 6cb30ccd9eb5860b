// Package session allocates the opaque session identifiers the Assistant
// Client interface hands back to callers (§6.2: "a new sessionId ... that
// callers persist to Session.assistant_session_id to resume later"). A real
// assistant CLI owns its own on-disk session/history file, addressed by
// this same id via its `--resume` flag — there is nothing left for Archon
// to replay in-process.
package session

import "github.com/google/uuid"

// NewID allocates a fresh opaque session id for the rare case an assistant
// binary's invocation reports none of its own.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Resolve picks the id to report back to the caller for a completed
// invocation: the CLI's own reported id always wins, since that is the
// value its own --resume flag expects on the next call.
func Resolve(cliReportedID string) string {
	if cliReportedID != "" {
		return cliReportedID
	}
	return NewID()
}
