package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/templates"
)

// cmdInvoke resolves name against the shared template lookup order
// (per-codebase commands, then global Command Templates). Actually running
// the resolved prompt against an assistant is the Workflow Engine's job
// (§4.5's routing step 2); the Command Handler only validates that a
// template exists and reports it, since invoking an assistant is explicitly
// outside this component's synchronous, assistant-free contract (§4.4).
func (h *Handler) cmdInvoke(ctx context.Context, conv *store.Conversation, name string, args []string) Result {
	var cb *store.Codebase
	if conv.CodebaseID != nil {
		cb, _ = h.Stores.Codebases.Get(ctx, *conv.CodebaseID)
	}

	resolved, err := templates.Resolve(ctx, h.Stores, cb, name)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			return fail(fmt.Sprintf("unknown command %q", name))
		}
		return fail(err.Error())
	}

	// The orchestrator sends non-catalogue names straight to the Workflow
	// Engine, so this Result only reports the resolution to direct callers
	// of Handle.
	return ok(fmt.Sprintf("resolved template %q (%d arg(s))", resolved.Name, len(args)))
}
