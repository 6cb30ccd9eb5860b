package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdWorkflow(ctx context.Context, conv *store.Conversation, args []string) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if len(args) == 0 {
		return fail("usage: /workflow list|reload|cancel")
	}
	if h.Workflows == nil {
		return fail("workflow engine not configured")
	}

	switch args[0] {
	case "list":
		summaries := h.Workflows.List(cb.DefaultCwd)
		if len(summaries) == 0 {
			return ok("no workflows discovered")
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
		var sb strings.Builder
		for _, s := range summaries {
			fmt.Fprintf(&sb, "%s - %s\n", s.Name, s.Description)
		}
		return ok(sb.String())

	case "reload":
		report := h.Workflows.Reload(cb.DefaultCwd)
		msg := fmt.Sprintf("reloaded %d workflow(s)", report.Loaded)
		if len(report.Errors) > 0 {
			msg += fmt.Sprintf(", %d error(s): %s", len(report.Errors), strings.Join(report.Errors, "; "))
		}
		return okModified(msg)

	case "cancel":
		run, err := h.Stores.Runs.GetRunning(ctx, conv.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fail("no active workflow run")
			}
			return fail(fmt.Sprintf("load active run: %v", err))
		}
		if err := h.Stores.Runs.MergeMetadata(ctx, run.ID, store.Metadata{"error": "Cancelled by user"}); err != nil {
			return fail(fmt.Sprintf("annotate run: %v", err))
		}
		if err := h.Stores.Runs.Complete(ctx, run.ID, store.RunFailed); err != nil {
			return fail(fmt.Sprintf("cancel run: %v", err))
		}
		return okModified("workflow run cancelled")

	default:
		return fail("usage: /workflow list|reload|cancel")
	}
}
