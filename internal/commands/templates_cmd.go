package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func (h *Handler) cmdTemplateAdd(ctx context.Context, args []string) Result {
	if len(args) < 2 {
		return fail("usage: /template-add <name> <content...>")
	}
	name := args[0]
	content := strings.Join(args[1:], " ")

	tmpl, err := h.Stores.Templates.Get(ctx, name)
	description := ""
	if err == nil {
		description = tmpl.Description
	}
	if d := extractFrontmatterDescription(content); d != "" {
		description = d
	}

	tmplToSave := &store.CommandTemplate{Name: name, Description: description, Content: content}
	if err := h.Stores.Templates.Upsert(ctx, tmplToSave); err != nil {
		return fail(fmt.Sprintf("save template: %v", err))
	}
	return okModified(fmt.Sprintf("template %q saved", name))
}

func (h *Handler) cmdTemplates(ctx context.Context) Result {
	list, err := h.Stores.Templates.List(ctx)
	if err != nil {
		return fail(fmt.Sprintf("list templates: %v", err))
	}
	if len(list) == 0 {
		return ok("no templates registered")
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	var sb strings.Builder
	for _, t := range list {
		sb.WriteString("/" + t.Name)
		if t.Description != "" {
			sb.WriteString(" - " + t.Description)
		}
		sb.WriteByte('\n')
	}
	return ok(sb.String())
}

func (h *Handler) cmdTemplateDelete(ctx context.Context, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /template-delete <name>")
	}
	if err := h.Stores.Templates.Delete(ctx, args[0]); err != nil {
		return fail(fmt.Sprintf("delete template: %v", err))
	}
	return okModified(fmt.Sprintf("template %q deleted", args[0]))
}
