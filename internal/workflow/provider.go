package workflow

import (
	"sync"

	"github.com/nextlevelbuilder/archon/internal/commands"
)

// RegistryProvider lazily constructs and caches one Registry per codebase
// clone root, since workflows are discovered per-repo at
// `{clone}/.archon/workflows/**/*.y?ml` (§4.5) rather than from one global
// directory.
type RegistryProvider struct {
	mu         sync.Mutex
	registries map[string]*Registry
}

// NewRegistryProvider constructs an empty provider.
func NewRegistryProvider() *RegistryProvider {
	return &RegistryProvider{registries: make(map[string]*Registry)}
}

// For returns the Registry for codebaseRoot, creating and loading it on
// first use. Returns nil for an empty root (no codebase linked yet).
func (p *RegistryProvider) For(codebaseRoot string) *Registry {
	if codebaseRoot == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.registries[codebaseRoot]; ok {
		return r
	}
	r := NewRegistry(codebaseRoot)
	r.Load()
	p.registries[codebaseRoot] = r
	return r
}

// List implements commands.WorkflowRegistry.
func (p *RegistryProvider) List(root string) []commands.WorkflowSummary {
	r := p.For(root)
	if r == nil {
		return nil
	}
	return r.List()
}

// Reload implements commands.WorkflowRegistry, re-scanning root's
// `.archon/workflows/` directory.
func (p *RegistryProvider) Reload(root string) commands.ReloadReport {
	r := p.For(root)
	if r == nil {
		return commands.ReloadReport{}
	}
	return r.Reload()
}
