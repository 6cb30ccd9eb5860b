package commands

const helpText = `Available commands:
  /help                         Show this catalogue
  /status                       Show platform, assistant, repo context
  /getcwd                       Show current repo context
  /setcwd <path>                Set the working directory
  /clone <url>                  Clone a repository
  /repos                        List known repositories
  /repo <#|name|prefix> [pull]  Switch the linked repository
  /repo-remove <#|name|prefix>  Remove a repository
  /command-set <name> <path> [text]   Register a per-repo command
  /load-commands <folder>       Bulk-load commands from a folder
  /commands                     List registered commands
  /template-add, /templates, /template-delete   Manage global templates
  /reset                        Deactivate the active session
  /reset-context                Deactivate the active session, keep cwd
  /worktree create|list|remove|cleanup|orphans|status   Manage worktrees
  /workflow list|reload|cancel  Manage workflows
  /init                         Scaffold .archon/ in the current repo
  /<templateName> [args]        Invoke a named command template`

func (h *Handler) cmdHelp() Result {
	return ok(helpText)
}
