package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/templates"
)

// AssistantResolver maps an assistant type to the client that runs it —
// the orchestrator wires in the concrete internal/assistant/{claude,codex}
// clients at startup.
type AssistantResolver func(assistantType store.AssistantType) (adapterapi.AssistantClient, error)

// Engine implements §4.5's routing and execution, resolving a codebase's
// Registry of loaded workflow definitions lazily via Registries.
type Engine struct {
	Stores     *store.Stores
	Registries *RegistryProvider
	Assistants AssistantResolver
}

// NewEngine constructs a Workflow Engine.
func NewEngine(stores *store.Stores, registries *RegistryProvider, assistants AssistantResolver) *Engine {
	return &Engine{Stores: stores, Registries: registries, Assistants: assistants}
}

// HandleMessage implements the Routing algorithm (§4.5) for a non-command
// inbound message. adapter receives any streamed/batched assistant output.
// It returns true if the message was consumed by the engine (a workflow run
// started, a template was invoked, or it was silently dropped per rule 1);
// false means the caller should fall back to a plain assistant invocation
// with no workflow bookkeeping.
func (e *Engine) HandleMessage(ctx context.Context, conv *store.Conversation, text string, adapter adapterapi.Adapter) (bool, error) {
	if _, err := e.Stores.Runs.GetRunning(ctx, conv.ID); err == nil {
		// Rule 1: only one concurrent workflow per conversation; the
		// message is ignored. /workflow cancel is handled by the Command
		// Handler before reaching the engine.
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("check running workflow: %w", err)
	}

	var cb *store.Codebase
	if conv.CodebaseID != nil {
		cb, _ = e.Stores.Codebases.Get(ctx, *conv.CodebaseID)
	}

	if strings.HasPrefix(text, "/") {
		name, args, ok := parseSlash(text)
		if ok {
			if resolved, err := templates.Resolve(ctx, e.Stores, cb, name); err == nil {
				return true, e.invokeTemplate(ctx, conv, resolved, args, adapter)
			} else if !errors.Is(err, templates.ErrNotFound) {
				return false, err
			}
			// Not a known template: fall through to workflow-name routing
			// with the bare name as a candidate.
		}
	}

	if wf := e.matchWorkflowByName(cb, text); wf != nil {
		return true, e.start(ctx, conv, wf, text, adapter)
	}

	return false, nil
}

func parseSlash(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// matchWorkflowByName is the "routing heuristic" rule 3 leaves
// domain-specific: it matches when the message is exactly a workflow's name
// (as `/name` or bare `name`), falling through to a plain assistant
// invocation otherwise. A conversation with no codebase linked yet has no
// workflows to match against.
func (e *Engine) matchWorkflowByName(cb *store.Codebase, text string) *Definition {
	if cb == nil {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	candidate := strings.TrimPrefix(fields[0], "/")
	registry := e.Registries.For(cb.DefaultCwd)
	if registry == nil {
		return nil
	}
	return registry.Get(candidate)
}

func (e *Engine) invokeTemplate(ctx context.Context, conv *store.Conversation, resolved *templates.Resolved, args []string, adapter adapterapi.Adapter) error {
	sess, err := e.activeSessionOrNil(ctx, conv.ID)
	if err != nil {
		return err
	}
	var meta store.Metadata
	if sess != nil {
		meta = sess.Metadata
	}
	prompt := templates.Substitute(resolved.Content, args, meta)

	result, err := e.invoke(ctx, conv, prompt, sess, false, adapter)
	if err != nil {
		return fmt.Errorf("invoke template %q: %w", resolved.Name, err)
	}
	_, err = e.persistSessionResult(ctx, conv, sess, result)
	return err
}

// start begins execution of a matched workflow, step-based or loop-based.
func (e *Engine) start(ctx context.Context, conv *store.Conversation, wf *Definition, userMessage string, adapter adapterapi.Adapter) error {
	run := &store.WorkflowRun{
		WorkflowName:     wf.Name,
		ConversationID:   conv.ID,
		CodebaseID:       conv.CodebaseID,
		CurrentStepIndex: 0,
		Status:           store.RunRunning,
		UserMessage:      userMessage,
		Metadata:         store.Metadata{},
	}
	if err := e.Stores.Runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create workflow run: %w", err)
	}

	var err error
	if wf.IsLoopBased() {
		err = e.runLoop(ctx, conv, wf, run, adapter)
	} else {
		err = e.runSteps(ctx, conv, wf, run, adapter)
	}

	if err != nil {
		if mergeErr := e.Stores.Runs.MergeMetadata(ctx, run.ID, store.Metadata{"error": err.Error()}); mergeErr != nil {
			slog.Error("failed to annotate failed workflow run", "run_id", run.ID, "error", mergeErr)
		}
		if compErr := e.Stores.Runs.Complete(ctx, run.ID, store.RunFailed); compErr != nil {
			slog.Error("failed to mark workflow run failed", "run_id", run.ID, "error", compErr)
		}
		return err
	}
	return nil
}

func (e *Engine) runSteps(ctx context.Context, conv *store.Conversation, wf *Definition, run *store.WorkflowRun, adapter adapterapi.Adapter) error {
	var cb *store.Codebase
	if conv.CodebaseID != nil {
		cb, _ = e.Stores.Codebases.Get(ctx, *conv.CodebaseID)
	}

	for i, step := range wf.Steps {
		if len(step.Parallel) > 0 {
			if err := e.runParallelStep(ctx, conv, cb, step.Parallel, adapter); err != nil {
				return fmt.Errorf("parallel step %d: %w", i, err)
			}
		} else {
			if err := e.runSingleStep(ctx, conv, cb, step, adapter); err != nil {
				return fmt.Errorf("step %d (%s): %w", i, step.Command, err)
			}
		}

		if err := e.Stores.Runs.AdvanceStep(ctx, run.ID, i+1); err != nil {
			return fmt.Errorf("advance step: %w", err)
		}
		if err := e.Stores.Runs.TouchActivity(ctx, run.ID); err != nil {
			slog.Warn("workflow activity heartbeat failed", "run_id", run.ID, "error", err)
		}
	}

	return e.Stores.Runs.Complete(ctx, run.ID, store.RunCompleted)
}

func (e *Engine) runSingleStep(ctx context.Context, conv *store.Conversation, cb *store.Codebase, step Step, adapter adapterapi.Adapter) error {
	resolved, err := templates.Resolve(ctx, e.Stores, cb, step.Command)
	if err != nil {
		return err
	}

	sess, err := e.sessionForStep(ctx, conv, step.ClearContext)
	if err != nil {
		return err
	}

	var meta store.Metadata
	if sess != nil {
		meta = sess.Metadata
	}
	prompt := templates.Substitute(resolved.Content, nil, meta)

	result, err := e.invoke(ctx, conv, prompt, sess, step.ClearContext, adapter)
	if err != nil {
		return err
	}
	_, err = e.persistSessionResult(ctx, conv, sess, result)
	return err
}

// runParallelStep launches one assistant invocation per branch concurrently
// (§4.5: "each in the same working directory"), waiting for all and
// succeeding only if every branch succeeds. Output ordering between
// branches is unspecified; each branch's text is sent as it arrives.
func (e *Engine) runParallelStep(ctx context.Context, conv *store.Conversation, cb *store.Codebase, branches []Step, adapter adapterapi.Adapter) error {
	var wg sync.WaitGroup
	errs := make([]error, len(branches))

	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch Step) {
			defer wg.Done()
			resolved, err := templates.Resolve(ctx, e.Stores, cb, branch.Command)
			if err != nil {
				errs[i] = err
				return
			}
			prompt := templates.Substitute(resolved.Content, nil, nil)
			_, err = e.invoke(ctx, conv, prompt, nil, true, adapter)
			errs[i] = err
		}(i, branch)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("parallel branch %d: %w", i, err)
		}
	}
	return nil
}

func (e *Engine) runLoop(ctx context.Context, conv *store.Conversation, wf *Definition, run *store.WorkflowRun, adapter adapterapi.Adapter) error {
	loop := wf.Loop
	var sess *store.Session
	var err error
	if !loop.FreshContext {
		sess, err = e.activeSessionOrNil(ctx, conv.ID)
		if err != nil {
			return err
		}
	}

	for i := 0; i < loop.MaxIterations; i++ {
		if loop.FreshContext {
			if err := e.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
				return fmt.Errorf("deactivate session for fresh iteration: %w", err)
			}
			sess = nil
		}

		result, err := e.invoke(ctx, conv, wf.Prompt, sess, loop.FreshContext, adapter)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		sess, err = e.persistSessionResult(ctx, conv, sess, result)
		if err != nil {
			return err
		}

		if err := e.Stores.Runs.AdvanceStep(ctx, run.ID, i+1); err != nil {
			return fmt.Errorf("advance iteration: %w", err)
		}
		if err := e.Stores.Runs.TouchActivity(ctx, run.ID); err != nil {
			slog.Warn("workflow activity heartbeat failed", "run_id", run.ID, "error", err)
		}

		if strings.Contains(result.text, loop.Until) {
			return e.Stores.Runs.Complete(ctx, run.ID, store.RunCompleted)
		}
	}

	if err := e.Stores.Runs.MergeMetadata(ctx, run.ID, store.Metadata{"error": "max_iterations reached"}); err != nil {
		slog.Warn("failed to annotate max_iterations run", "run_id", run.ID, "error", err)
	}
	return e.Stores.Runs.Complete(ctx, run.ID, store.RunFailed)
}

type invokeOutcome struct {
	text      string
	sessionID string
}

// invoke runs the assistant for conv, resuming sess.AssistantSessionID
// unless clearContext requests a fresh session, and streams output to
// adapter according to its declared streaming mode.
func (e *Engine) invoke(ctx context.Context, conv *store.Conversation, prompt string, sess *store.Session, clearContext bool, adapter adapterapi.Adapter) (invokeOutcome, error) {
	assistantType := conv.AIAssistant
	client, err := e.Assistants(assistantType)
	if err != nil {
		return invokeOutcome{}, fmt.Errorf("resolve assistant client: %w", err)
	}

	workingDir := ""
	if conv.Cwd != nil {
		workingDir = *conv.Cwd
	}

	resumeID := ""
	if sess != nil && !clearContext {
		resumeID = sess.AssistantSessionID
	}

	req := adapterapi.InvokeRequest{
		Prompt:            prompt,
		WorkingDirectory:  workingDir,
		SessionIDToResume: resumeID,
		AssistantType:     string(assistantType),
	}

	res, err := client.Invoke(ctx, req)
	if err != nil {
		return invokeOutcome{}, fmt.Errorf("assistant invocation: %w", err)
	}

	text := res.TextOutput
	if res.Stream != nil && adapter != nil {
		var sb strings.Builder
		for chunk := range res.Stream {
			sb.WriteString(chunk)
			if err := adapter.SendMessage(ctx, conv.PlatformConversationID, chunk); err != nil {
				slog.Warn("adapter send failed during stream", "conversation_id", conv.ID, "error", err)
			}
		}
		text = sb.String()
	} else if adapter != nil && text != "" {
		if err := adapter.SendMessage(ctx, conv.PlatformConversationID, text); err != nil {
			slog.Warn("adapter send failed", "conversation_id", conv.ID, "error", err)
		}
	}

	return invokeOutcome{text: text, sessionID: res.SessionID}, nil
}

// sessionForStep implements §4.5's per-step session policy: clearContext
// deactivates first, otherwise the existing active session (if any) resumes.
func (e *Engine) sessionForStep(ctx context.Context, conv *store.Conversation, clearContext bool) (*store.Session, error) {
	if clearContext {
		if err := e.Stores.Sessions.Deactivate(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("deactivate session: %w", err)
		}
		return nil, nil
	}
	return e.activeSessionOrNil(ctx, conv.ID)
}

func (e *Engine) activeSessionOrNil(ctx context.Context, conversationID string) (*store.Session, error) {
	sess, err := e.Stores.Sessions.GetActive(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return sess, nil
}

// persistSessionResult records the assistant's returned session id,
// creating a new Session row if none was active (e.g. after clearContext or
// on a conversation's first invocation), and returns the session now
// current for conv (nil if the assistant returned no session id).
func (e *Engine) persistSessionResult(ctx context.Context, conv *store.Conversation, sess *store.Session, result invokeOutcome) (*store.Session, error) {
	if result.sessionID == "" {
		return sess, nil
	}
	if sess != nil {
		if err := e.Stores.Sessions.SetAssistantSessionID(ctx, sess.ID, result.sessionID); err != nil {
			return sess, err
		}
		sess.AssistantSessionID = result.sessionID
		return sess, nil
	}

	newSess := &store.Session{
		ConversationID:     conv.ID,
		CodebaseID:         conv.CodebaseID,
		AIAssistant:        conv.AIAssistant,
		AssistantSessionID: result.sessionID,
		Active:             true,
		Metadata:           store.Metadata{},
	}
	if err := e.Stores.Sessions.Create(ctx, newSess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return newSess, nil
}
