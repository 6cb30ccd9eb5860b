// Package templates resolves and substitutes Command Templates and
// per-codebase commands — the lookup order and `$1…`/`$ARGUMENTS`
// substitution shared by the Command Handler (/<name>) and the Workflow
// Engine's step execution (§4.4, §4.5).
package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// ErrNotFound is returned when neither the codebase's commands nor the
// global Command Templates have an entry for name.
var ErrNotFound = errors.New("command not found")

// Resolved is a template located via the shared lookup order, with its raw
// content ready for Substitute.
type Resolved struct {
	Name    string
	Content string
}

// Resolve looks up name first in the codebase's `commands` map, reading the
// referenced file (a path relative to the codebase's default_cwd) as the
// template content, then falls back to global Command Templates (§4.5's
// "same lookup order as /command-invoke").
func Resolve(ctx context.Context, stores *store.Stores, codebase *store.Codebase, name string) (*Resolved, error) {
	if codebase != nil {
		if ref, ok := codebase.Commands[name]; ok {
			path := ref.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(codebase.DefaultCwd, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read command %q: %w", name, err)
			}
			return &Resolved{Name: name, Content: string(data)}, nil
		}
	}

	tmpl, err := stores.Templates.Get(ctx, name)
	if err == nil {
		return &Resolved{Name: name, Content: tmpl.Content}, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil, fmt.Errorf("resolve template %q: %w", name, err)
}

var positionalPattern = regexp.MustCompile(`\$(\d+)`)

// Substitute expands $1…$N and $ARGUMENTS in content from args, and the
// session-metadata-derived $PLAN / $IMPLEMENTATION_SUMMARY placeholders
// (§4.5). Unresolved positional references are left verbatim.
func Substitute(content string, args []string, sessionMetadata store.Metadata) string {
	out := positionalPattern.ReplaceAllStringFunc(content, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(args) {
			return m
		}
		return args[n-1]
	})

	out = strings.ReplaceAll(out, "$ARGUMENTS", strings.Join(args, " "))

	if sessionMetadata != nil {
		if plan, ok := sessionMetadata["plan"].(string); ok {
			out = strings.ReplaceAll(out, "$PLAN", plan)
		}
		if summary, ok := sessionMetadata["implementation_summary"].(string); ok {
			out = strings.ReplaceAll(out, "$IMPLEMENTATION_SUMMARY", summary)
		}
	}

	return out
}
