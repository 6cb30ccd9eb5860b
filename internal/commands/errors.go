package commands

import (
	"errors"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// conversationDisappearedOrErr renders the canonical "conversation
// disappeared" message (§7) when err is ErrConversationNotFound, and the raw
// error otherwise. No retry is attempted by the handler itself.
func conversationDisappearedOrErr(err error) string {
	if errors.Is(err, store.ErrConversationNotFound) {
		return "conversation state changed; please try again"
	}
	return err.Error()
}
