// Package bundled embeds Archon's default commands and workflows — the set
// `/clone` seeds into a freshly cloned repository's `.archon/commands` and
// `.archon/workflows`, file by file, never overwriting a file that already
// exists (§4.4).
package bundled

import "embed"

//go:embed commands/*.md workflows/*.yaml
var FS embed.FS

// CommandsDir and WorkflowsDir are FS's top-level directories, mirrored
// under a cloned repository's `.archon/commands` and `.archon/workflows`.
const (
	CommandsDir  = "commands"
	WorkflowsDir = "workflows"
)
