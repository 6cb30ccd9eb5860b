package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// NewStores opens the Postgres connection pool and wires all six typed
// accessors into a single store.Stores container.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Codebases:     NewCodebaseStore(db),
		Conversations: NewConversationStore(db),
		Sessions:      NewSessionStore(db),
		Templates:     NewCommandTemplateStore(db),
		Envs:          NewIsolationEnvStore(db),
		Runs:          NewWorkflowRunStore(db),
	}, nil
}
