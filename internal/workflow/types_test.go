package workflow

import "testing"

func TestValidate_StepBased(t *testing.T) {
	d := &Definition{
		Name: "release",
		Steps: []Step{
			{Command: "build"},
			{Parallel: []Step{{Command: "test-unit"}, {Command: "test-integration"}}},
		},
	}
	if errs := Validate(d); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidate_LoopBased(t *testing.T) {
	d := &Definition{
		Name:   "iterate",
		Loop:   &Loop{Until: "DONE", MaxIterations: 5},
		Prompt: "keep going",
	}
	if errs := Validate(d); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidate_RejectsBothShapes(t *testing.T) {
	d := &Definition{
		Name:   "bad",
		Steps:  []Step{{Command: "build"}},
		Loop:   &Loop{Until: "DONE", MaxIterations: 1},
		Prompt: "x",
	}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestValidate_RejectsNeitherShape(t *testing.T) {
	d := &Definition{Name: "empty"}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestValidate_LoopWithoutPromptRejected(t *testing.T) {
	d := &Definition{
		Name: "noprompt",
		Loop: &Loop{Until: "DONE", MaxIterations: 1},
	}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected loop without prompt to be rejected")
	}
}

func TestValidate_RejectsInvalidCommandName(t *testing.T) {
	d := &Definition{
		Name:  "bad-command",
		Steps: []Step{{Command: "bad command!"}},
	}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected invalid command name to be rejected")
	}
}

func TestValidate_RejectsNestedParallel(t *testing.T) {
	d := &Definition{
		Name: "nested",
		Steps: []Step{
			{Parallel: []Step{
				{Command: "a", Parallel: []Step{{Command: "b"}}},
			}},
		},
	}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected nested parallel to be rejected")
	}
}

func TestValidate_RejectsEmptyParallel(t *testing.T) {
	d := &Definition{
		Name:  "emptyparallel",
		Steps: []Step{{Parallel: []Step{}}},
	}
	errs := Validate(d)
	if len(errs) == 0 {
		t.Fatal("expected step with neither command nor parallel entries to be rejected")
	}
}

func TestProviderOrDefault(t *testing.T) {
	d := &Definition{}
	if got := d.ProviderOrDefault(); got != "claude" {
		t.Fatalf("expected default provider claude, got %q", got)
	}
	d.Provider = "codex"
	if got := d.ProviderOrDefault(); got != "codex" {
		t.Fatalf("expected codex, got %q", got)
	}
}
