package workflow

import "testing"

func TestRegistryProvider_CachesPerRoot(t *testing.T) {
	p := NewRegistryProvider()
	dir := t.TempDir()
	writeWorkflowFile(t, dir, ".archon/workflows/release.yaml", "name: release\nsteps:\n  - command: build\n")

	summaries := p.List(dir)
	if len(summaries) != 1 || summaries[0].Name != "release" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	if p.For(dir) != p.For(dir) {
		t.Fatal("expected the same Registry instance to be cached per root")
	}
}

func TestRegistryProvider_EmptyRootReturnsNil(t *testing.T) {
	p := NewRegistryProvider()
	if p.For("") != nil {
		t.Fatal("expected nil Registry for an empty root")
	}
	if summaries := p.List(""); summaries != nil {
		t.Fatalf("expected nil summaries for an empty root, got %+v", summaries)
	}
}
