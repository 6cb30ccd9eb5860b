package commands

import (
	"context"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdSetCwd(ctx context.Context, conv *store.Conversation, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /setcwd <path>")
	}

	resolved, err := resolveWithinRoot(h.Config.WorkspaceRoot(), args[0])
	if err != nil {
		return fail(err.Error())
	}

	if err := h.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}

	patch := store.ConversationPatch{Cwd: &resolved}
	if err := h.Stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		return fail(conversationDisappearedOrErr(err))
	}
	conv.Cwd = &resolved

	return okModified("cwd set to " + resolved)
}
