package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkflowFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistry_LoadsValidAndSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, ".archon/workflows/release.yaml", `
name: release
description: Cut a release
steps:
  - command: build
  - command: publish
`)
	writeWorkflowFile(t, dir, ".archon/workflows/nested/broken.yml", `
name: broken
steps:
  - command: build
loop:
  until: DONE
  max_iterations: 3
prompt: go
`)

	r := NewRegistry(dir)
	report := r.Load()

	if report.Loaded != 1 {
		t.Fatalf("expected 1 loaded workflow, got %d (errors: %v)", report.Loaded, report.Errors)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 reported error for the broken file, got %v", report.Errors)
	}

	summaries := r.List()
	if len(summaries) != 1 || summaries[0].Name != "release" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if got := r.Get("release"); got == nil || len(got.Steps) != 2 {
		t.Fatalf("expected release workflow with 2 steps, got %+v", got)
	}
	if r.Get("missing") != nil {
		t.Fatal("expected nil for an unknown workflow name")
	}
}

func TestRegistry_MissingDirectoryLoadsEmpty(t *testing.T) {
	r := NewRegistry(t.TempDir())
	report := r.Load()
	if report.Loaded != 0 || len(report.Errors) != 0 {
		t.Fatalf("expected empty report for missing workflows dir, got %+v", report)
	}
}
