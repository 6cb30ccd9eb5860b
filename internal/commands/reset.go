package commands

import (
	"context"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdReset(ctx context.Context, conv *store.Conversation, keepContext bool) Result {
	if err := h.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	if keepContext {
		return okModified("session reset; cwd preserved")
	}
	return okModified("session reset")
}
