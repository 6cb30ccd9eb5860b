package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdCommandSet(ctx context.Context, conv *store.Conversation, args []string) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if len(args) < 2 {
		return fail("usage: /command-set <name> <relpath> [text]")
	}
	name, relPath := args[0], args[1]

	absPath, err := resolveWithinRoot(cb.DefaultCwd, relPath)
	if err != nil {
		return fail(err.Error())
	}

	if len(args) >= 3 {
		text := strings.Join(args[2:], " ")
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fail(fmt.Sprintf("create directory: %v", err))
		}
		if err := os.WriteFile(absPath, []byte(text), 0o644); err != nil {
			return fail(fmt.Sprintf("write file: %v", err))
		}
	} else if _, err := os.Stat(absPath); err != nil {
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fail(fmt.Sprintf("create directory: %v", err))
		}
		if err := os.WriteFile(absPath, nil, 0o644); err != nil {
			return fail(fmt.Sprintf("create file: %v", err))
		}
	}

	cb.Commands[name] = store.CommandRef{Path: relPath}
	if err := h.Stores.Codebases.SetCommands(ctx, cb.ID, cb.Commands); err != nil {
		return fail(fmt.Sprintf("persist command: %v", err))
	}

	return okModified(fmt.Sprintf("registered command %q -> %s", name, relPath))
}

func (h *Handler) cmdLoadCommands(ctx context.Context, conv *store.Conversation, args []string) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if len(args) == 0 {
		return fail("usage: /load-commands <folder>")
	}

	absFolder, err := resolveWithinRoot(cb.DefaultCwd, args[0])
	if err != nil {
		return fail(err.Error())
	}
	relFolder, err := filepath.Rel(cb.DefaultCwd, absFolder)
	if err != nil {
		relFolder = args[0]
	}

	loaded := loadCommandsRecursive(cb.DefaultCwd, relFolder)
	if len(loaded) == 0 {
		return fail("no .md files found")
	}

	for name, ref := range loaded {
		cb.Commands[name] = ref
	}
	if err := h.Stores.Codebases.SetCommands(ctx, cb.ID, cb.Commands); err != nil {
		return fail(fmt.Sprintf("persist commands: %v", err))
	}

	return okModified(fmt.Sprintf("loaded %d command(s) from %s", len(loaded), args[0]))
}

func (h *Handler) cmdCommands(ctx context.Context, conv *store.Conversation) Result {
	cb, errRes := h.requireCodebase(ctx, conv)
	if errRes != nil {
		return *errRes
	}
	if len(cb.Commands) == 0 {
		return ok("no commands registered")
	}
	names := make([]string, 0, len(cb.Commands))
	for name := range cb.Commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		ref := cb.Commands[name]
		fmt.Fprintf(&sb, "%s -> %s", name, ref.Path)
		if ref.Description != "" {
			fmt.Fprintf(&sb, " (%s)", ref.Description)
		}
		sb.WriteByte('\n')
	}
	return ok(sb.String())
}

// loadCommandsRecursive walks relFolder under root, indexing *.md files as
// commands keyed by filename stem. Hidden directories and node_modules are
// skipped; when two files share a name, the later one (by walk order) wins
// (§4.4).
func loadCommandsRecursive(root, relFolder string) map[string]store.CommandRef {
	out := map[string]store.CommandRef{}
	absFolder := filepath.Join(root, relFolder)

	_ = filepath.WalkDir(absFolder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			base := d.Name()
			if base != "." && (strings.HasPrefix(base, ".") || base == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), ".md")
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		out[name] = store.CommandRef{Path: rel, Description: parseFrontmatterDescription(path)}
		return nil
	})

	return out
}
