package orchestrator

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
	"github.com/nextlevelbuilder/archon/internal/commands"
	"github.com/nextlevelbuilder/archon/internal/config"
	"github.com/nextlevelbuilder/archon/internal/lock"
	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/workflow"
)

// --- fakes -------------------------------------------------------------

type fakeConversations struct {
	byID       map[string]*store.Conversation
	byPlatform map[string]*store.Conversation
	seq        int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{byID: map[string]*store.Conversation{}, byPlatform: map[string]*store.Conversation{}}
}

func (f *fakeConversations) Create(ctx context.Context, c *store.Conversation) error {
	f.seq++
	c.ID = string(rune('a' + f.seq))
	cp := *c
	f.byID[c.ID] = &cp
	f.byPlatform[c.PlatformType+"|"+c.PlatformConversationID] = &cp
	return nil
}

func (f *fakeConversations) Get(ctx context.Context, id string) (*store.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) GetByPlatform(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, error) {
	c, ok := f.byPlatform[platformType+"|"+platformConversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) Update(ctx context.Context, id string, patch store.ConversationPatch) error {
	return nil
}
func (f *fakeConversations) ClearCodebaseRefs(ctx context.Context, codebaseID string) error { return nil }
func (f *fakeConversations) Delete(ctx context.Context, id string) error                    { return nil }

type fakeSessions struct{}

func (f *fakeSessions) Create(ctx context.Context, s *store.Session) error { return nil }
func (f *fakeSessions) GetActive(ctx context.Context, conversationID string) (*store.Session, error) {
	return nil, store.ErrNotFound
}
func (f *fakeSessions) Get(ctx context.Context, id string) (*store.Session, error) {
	return nil, store.ErrNotFound
}
func (f *fakeSessions) Deactivate(ctx context.Context, conversationID string) error { return nil }
func (f *fakeSessions) SetAssistantSessionID(ctx context.Context, id, assistantSessionID string) error {
	return nil
}
func (f *fakeSessions) MergeMetadata(ctx context.Context, id string, patch store.Metadata) error {
	return nil
}
func (f *fakeSessions) ClearCodebaseRefs(ctx context.Context, codebaseID string) error { return nil }

type fakeRuns struct{}

func (f *fakeRuns) Create(ctx context.Context, r *store.WorkflowRun) error { return nil }
func (f *fakeRuns) Get(ctx context.Context, id string) (*store.WorkflowRun, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRuns) GetRunning(ctx context.Context, conversationID string) (*store.WorkflowRun, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRuns) AdvanceStep(ctx context.Context, id string, stepIndex int) error { return nil }
func (f *fakeRuns) MergeMetadata(ctx context.Context, id string, patch store.Metadata) error {
	return nil
}
func (f *fakeRuns) Complete(ctx context.Context, id string, status store.RunStatus) error { return nil }
func (f *fakeRuns) TouchActivity(ctx context.Context, id string) error                    { return nil }

type fakeTemplates struct{}

func (f *fakeTemplates) Upsert(ctx context.Context, t *store.CommandTemplate) error { return nil }
func (f *fakeTemplates) Get(ctx context.Context, name string) (*store.CommandTemplate, error) {
	return nil, store.ErrNotFound
}
func (f *fakeTemplates) List(ctx context.Context) ([]*store.CommandTemplate, error) { return nil, nil }
func (f *fakeTemplates) Delete(ctx context.Context, name string) error              { return nil }

type fakeAdapter struct {
	sent []string
}

func (a *fakeAdapter) PlatformType() string                    { return "fake" }
func (a *fakeAdapter) StreamingMode() adapterapi.StreamingMode { return adapterapi.StreamingModeBatch }
func (a *fakeAdapter) OnMessage(adapterapi.MessageHandler)      {}
func (a *fakeAdapter) Start(ctx context.Context) error          { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error           { return nil }
func (a *fakeAdapter) EnsureThread(ctx context.Context, originalID string, mctx adapterapi.MessageContext) (string, error) {
	return originalID, nil
}
func (a *fakeAdapter) SendMessage(ctx context.Context, conversationID, text string) error {
	a.sent = append(a.sent, conversationID+":"+text)
	return nil
}

type fakeAssistant struct {
	reply string
}

func (a *fakeAssistant) Invoke(ctx context.Context, req adapterapi.InvokeRequest) (adapterapi.InvokeResult, error) {
	return adapterapi.InvokeResult{SessionID: "sess-1", TextOutput: a.reply}, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeConversations) {
	t.Helper()
	convs := newFakeConversations()
	stores := &store.Stores{
		Conversations: convs,
		Sessions:      &fakeSessions{},
		Runs:          &fakeRuns{},
		Templates:     &fakeTemplates{},
	}

	registries := workflow.NewRegistryProvider()
	assistant := &fakeAssistant{reply: "hello back"}
	resolver := func(assistantType store.AssistantType) (adapterapi.AssistantClient, error) {
		return assistant, nil
	}
	engine := workflow.NewEngine(stores, registries, resolver)

	cfg := &config.Config{DefaultAIAssistant: "claude"}
	cmdHandler := commands.New(stores, nil, cfg, nil, nil)

	lockMgr := lock.NewManager(4, nil)
	return New(stores, lockMgr, cmdHandler, engine, cfg), convs
}

func TestHandleInbound_PlainFallback(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	adapter := &fakeAdapter{}

	err := o.HandleInbound(context.Background(), adapter, "chat-1", "what does this do", adapterapi.MessageContext{})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if len(adapter.sent) != 1 || adapter.sent[0] != "chat-1:hello back" {
		t.Fatalf("unexpected sends: %v", adapter.sent)
	}
}

func TestHandleInbound_CreatesConversationOnFirstMessage(t *testing.T) {
	o, convs := newTestOrchestrator(t)
	adapter := &fakeAdapter{}

	if err := o.HandleInbound(context.Background(), adapter, "chat-2", "hi", adapterapi.MessageContext{}); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if _, ok := convs.byPlatform["fake|chat-2"]; !ok {
		t.Fatal("expected a conversation to be created for a new platform id")
	}
}

func TestHandleInbound_InheritsFromParent(t *testing.T) {
	o, convs := newTestOrchestrator(t)
	codebaseID := "cb-1"
	cwd := "/workspace/repo"
	parent := &store.Conversation{
		PlatformType:           "fake",
		PlatformConversationID: "parent-chat",
		AIAssistant:            store.AssistantCodex,
		CodebaseID:             &codebaseID,
		Cwd:                    &cwd,
	}
	if err := convs.Create(context.Background(), parent); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	adapter := &fakeAdapter{}
	mctx := adapterapi.MessageContext{ParentConversationID: parent.ID}
	if err := o.HandleInbound(context.Background(), adapter, "child-chat", "hi", mctx); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	child, ok := convs.byPlatform["fake|child-chat"]
	if !ok {
		t.Fatal("expected child conversation to be created")
	}
	if child.CodebaseID == nil || *child.CodebaseID != codebaseID {
		t.Fatalf("expected inherited codebase id %q, got %+v", codebaseID, child.CodebaseID)
	}
	if child.Cwd == nil || *child.Cwd != cwd {
		t.Fatalf("expected inherited cwd %q, got %+v", cwd, child.Cwd)
	}
	if child.AIAssistant != store.AssistantCodex {
		t.Fatalf("expected inherited assistant %q, got %q", store.AssistantCodex, child.AIAssistant)
	}
}

func TestHandleInbound_CatalogueCommandGoesToHandler(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	adapter := &fakeAdapter{}

	if err := o.HandleInbound(context.Background(), adapter, "chat-3", "/help", adapterapi.MessageContext{}); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %v", adapter.sent)
	}
}
