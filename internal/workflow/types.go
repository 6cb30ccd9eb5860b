// Package workflow implements the Workflow Engine (§4.5): loading YAML
// workflow definitions, routing inbound messages to them, and executing
// their step-based or loop-based bodies against an Assistant Client.
package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// commandPattern is the allowed shape of a step's `command` field (§4.5).
var commandPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Step is one entry of a step-based workflow's `steps` list. Exactly one of
// Command or Parallel is set, never both (enforced by Validate).
type Step struct {
	Command      string `yaml:"command"`
	ClearContext bool   `yaml:"clearContext"`
	Parallel     []Step `yaml:"parallel"`
}

// Loop is the body of a loop-based workflow (§4.5).
type Loop struct {
	Until         string `yaml:"until"`
	MaxIterations int    `yaml:"max_iterations"`
	FreshContext  bool   `yaml:"fresh_context"`
}

// Definition is a parsed, validated workflow file.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Steps       []Step `yaml:"steps"`
	Loop        *Loop  `yaml:"loop"`
	Prompt      string `yaml:"prompt"`

	// SourcePath is the file the definition was loaded from, for reload
	// diagnostics and logging; not part of the YAML shape.
	SourcePath string `yaml:"-"`
}

// IsLoopBased reports whether d is the loop-based shape.
func (d *Definition) IsLoopBased() bool { return d.Loop != nil }

// Validate enforces §4.5's strict validation rules, returning every problem
// found (not just the first) so callers can log one aggregated line per
// file, per the spec's "aggregated into one log line" requirement.
func Validate(d *Definition) []string {
	var errs []string

	if d.Name == "" {
		errs = append(errs, "name is required")
	}

	hasSteps := len(d.Steps) > 0
	hasLoop := d.Loop != nil

	switch {
	case hasSteps && hasLoop:
		errs = append(errs, "steps and loop are mutually exclusive")
	case !hasSteps && !hasLoop:
		errs = append(errs, "exactly one of steps or loop is required")
	case hasLoop:
		if strings.TrimSpace(d.Prompt) == "" {
			errs = append(errs, "loop requires a non-empty prompt")
		}
		if d.Loop.MaxIterations < 1 {
			errs = append(errs, "loop.max_iterations must be >= 1")
		}
		if strings.TrimSpace(d.Loop.Until) == "" {
			errs = append(errs, "loop.until is required")
		}
	case hasSteps:
		for i, s := range d.Steps {
			errs = append(errs, validateStep(i, s)...)
		}
	}

	if d.Provider != "" && d.Provider != "claude" && d.Provider != "codex" {
		errs = append(errs, fmt.Sprintf("provider %q must be claude or codex", d.Provider))
	}

	return errs
}

func validateStep(i int, s Step) []string {
	var errs []string
	hasCommand := s.Command != ""
	hasParallel := len(s.Parallel) > 0

	switch {
	case hasCommand && hasParallel:
		errs = append(errs, fmt.Sprintf("step %d: command and parallel are mutually exclusive", i))
	case !hasCommand && !hasParallel:
		errs = append(errs, fmt.Sprintf("step %d: must set command or parallel", i))
	case hasCommand:
		if !commandPattern.MatchString(s.Command) {
			errs = append(errs, fmt.Sprintf("step %d: command %q must match [A-Za-z0-9_.-]+", i, s.Command))
		}
	case hasParallel:
		for j, p := range s.Parallel {
			if len(p.Parallel) > 0 {
				errs = append(errs, fmt.Sprintf("step %d: parallel entry %d must not nest", i, j))
				continue
			}
			if p.Command == "" {
				errs = append(errs, fmt.Sprintf("step %d: parallel entry %d must set command", i, j))
				continue
			}
			if !commandPattern.MatchString(p.Command) {
				errs = append(errs, fmt.Sprintf("step %d: parallel entry %d command %q must match [A-Za-z0-9_.-]+", i, j, p.Command))
			}
		}
	}
	return errs
}

// ProviderOrDefault returns the workflow's assistant provider, defaulting to claude
// per §4.5.
func (d *Definition) ProviderOrDefault() string {
	if d.Provider == "" {
		return "claude"
	}
	return d.Provider
}
