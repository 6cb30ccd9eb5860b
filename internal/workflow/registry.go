package workflow

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/archon/internal/commands"
)

// Summary is the public listing shape, matching commands.WorkflowSummary.
type Summary = commands.WorkflowSummary

// Registry discovers, loads, and hot-reloads workflow definitions under one
// codebase's `.archon/workflows/` (§4.5's Discovery). RegistryProvider
// exposes the commands.WorkflowRegistry contract across multiple Registries,
// one per codebase root.
type Registry struct {
	root string

	mu          sync.RWMutex
	definitions map[string]*Definition

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry constructs a Registry rooted at {codebaseRoot}/.archon/workflows.
func NewRegistry(codebaseRoot string) *Registry {
	return &Registry{
		root:        filepath.Join(codebaseRoot, ".archon", "workflows"),
		definitions: map[string]*Definition{},
	}
}

// Load performs an initial synchronous discovery pass.
func (r *Registry) Load() commands.ReloadReport {
	return r.reload()
}

// Reload implements commands.WorkflowRegistry.
func (r *Registry) Reload() commands.ReloadReport {
	return r.reload()
}

func (r *Registry) reload() commands.ReloadReport {
	defs := map[string]*Definition{}
	var fileErrors []string

	_ = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // missing/unreadable dir: no workflows defined yet
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		def, errs := loadFile(path)
		if len(errs) > 0 {
			slog.Warn("workflow file rejected", "path", path, "errors", strings.Join(errs, "; "))
			fileErrors = append(fileErrors, fmt.Sprintf("%s: %s", path, strings.Join(errs, "; ")))
			return nil
		}
		defs[def.Name] = def
		return nil
	})

	r.mu.Lock()
	r.definitions = defs
	r.mu.Unlock()

	return commands.ReloadReport{Loaded: len(defs), Errors: fileErrors}
}

func loadFile(path string) (*Definition, []string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []string{err.Error()}
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, []string{fmt.Sprintf("parse yaml: %v", err)}
	}
	def.SourcePath = path
	if errs := Validate(&def); len(errs) > 0 {
		return nil, errs
	}
	return &def, nil
}

// List implements commands.WorkflowRegistry.
func (r *Registry) List() []commands.WorkflowSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]commands.WorkflowSummary, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, commands.WorkflowSummary{Name: d.Name, Description: d.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the named workflow, or nil if none is loaded.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.definitions[name]
}

// Watch starts an fsnotify watch over the workflows directory (and any
// subdirectories present at startup), reloading on any write/create/rename/
// remove event. Best-effort: if the directory doesn't exist yet, Watch
// returns nil without watching anything; a later Reload rescans but does not
// start a watch.
func (r *Registry) Watch() error {
	if _, err := os.Stat(r.root); err != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create workflow watcher: %w", err)
	}

	err = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.Add(path)
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("watch workflow directories: %w", err)
	}

	r.watcher = w
	r.done = make(chan struct{})
	go r.watchLoop()
	return nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			report := r.reload()
			slog.Info("workflows hot-reloaded", "trigger", event.Name, "loaded", report.Loaded, "errors", len(report.Errors))
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("workflow watcher error", "error", err)
		case <-r.done:
			return
		}
	}
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
