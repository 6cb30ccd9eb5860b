// Package orchestrator wires the Conversation Lock Manager, Command
// Handler, Workflow Engine and Platform Adapters together into §2's
// request flow: inbound message → serialize per conversation → load or
// create the Conversation row → command dispatch or workflow routing or a
// plain assistant fallback → reply through the adapter. It owns no
// persistence or business logic itself — it is the dispatcher, grounded in
// the teacher's internal/channels.Manager register/start/stop/dispatch
// idiom, generalized from bus-based outbound fan-out to direct per-adapter
// SendMessage calls since Platform Adapters here are addressed synchronously
// by conversation id rather than through a shared outbound queue.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
	"github.com/nextlevelbuilder/archon/internal/commands"
	"github.com/nextlevelbuilder/archon/internal/config"
	"github.com/nextlevelbuilder/archon/internal/lock"
	"github.com/nextlevelbuilder/archon/internal/store"
	"github.com/nextlevelbuilder/archon/internal/workflow"
)

// Orchestrator is the process-wide dispatcher tying every core component to
// the set of registered Platform Adapters.
type Orchestrator struct {
	Stores   *store.Stores
	Lock     *lock.Manager
	Commands *commands.Handler
	Workflow *workflow.Engine
	Config   *config.Config

	mu       sync.RWMutex
	adapters map[string]adapterapi.Adapter
}

// New constructs an Orchestrator. Call RegisterAdapter for each configured
// platform before StartAll.
func New(stores *store.Stores, lockMgr *lock.Manager, cmdHandler *commands.Handler, engine *workflow.Engine, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Stores:   stores,
		Lock:     lockMgr,
		Commands: cmdHandler,
		Workflow: engine,
		Config:   cfg,
		adapters: make(map[string]adapterapi.Adapter),
	}
}

// RegisterAdapter wires adapter's inbound callback to HandleInbound and adds
// it to the set StartAll/StopAll manage, keyed by its PlatformType.
func (o *Orchestrator) RegisterAdapter(adapter adapterapi.Adapter) {
	o.mu.Lock()
	o.adapters[adapter.PlatformType()] = adapter
	o.mu.Unlock()

	platform := adapter.PlatformType()
	adapter.OnMessage(func(ctx context.Context, conversationID, text string, mctx adapterapi.MessageContext) {
		if err := o.HandleInbound(ctx, adapter, conversationID, text, mctx); err != nil {
			slog.Error("inbound handling failed", "platform", platform, "conversation_id", conversationID, "error", err)
		}
	})
}

// StartAll starts every registered adapter, logging (not failing) on a
// single adapter's startup error so one misconfigured platform doesn't
// block the others.
func (o *Orchestrator) StartAll(ctx context.Context) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for platform, adapter := range o.adapters {
		if err := adapter.Start(ctx); err != nil {
			slog.Error("failed to start adapter", "platform", platform, "error", err)
			continue
		}
		slog.Info("adapter started", "platform", platform)
	}
}

// StopAll stops every registered adapter.
func (o *Orchestrator) StopAll(ctx context.Context) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for platform, adapter := range o.adapters {
		if err := adapter.Stop(ctx); err != nil {
			slog.Error("error stopping adapter", "platform", platform, "error", err)
		}
	}
}

// HandleInbound implements §2's inbound data flow for a single message,
// serialized per conversation by the Lock Manager.
func (o *Orchestrator) HandleInbound(ctx context.Context, adapter adapterapi.Adapter, platformConversationID, text string, mctx adapterapi.MessageContext) error {
	return o.Lock.Acquire(platformConversationID, func(ctx context.Context) error {
		conv, err := o.loadOrCreateConversation(ctx, adapter.PlatformType(), platformConversationID, mctx)
		if err != nil {
			return fmt.Errorf("resolve conversation: %w", err)
		}

		reply, err := o.route(ctx, conv, text, adapter)
		if err != nil {
			slog.Error("route failed", "conversation_id", conv.ID, "error", err)
			reply = fmt.Sprintf("internal error: %v", err)
		}
		if reply == "" {
			return nil
		}
		if err := adapter.SendMessage(ctx, platformConversationID, reply); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		return nil
	})
}

// loadOrCreateConversation implements §6.1's parent-conversation
// inheritance: a brand-new conversation created with a parentConversationId
// inherits codebase_id, cwd and ai_assistant_type from the parent at
// creation time only.
func (o *Orchestrator) loadOrCreateConversation(ctx context.Context, platformType, platformConversationID string, mctx adapterapi.MessageContext) (*store.Conversation, error) {
	conv, err := o.Stores.Conversations.GetByPlatform(ctx, platformType, platformConversationID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	conv = &store.Conversation{
		PlatformType:           platformType,
		PlatformConversationID: platformConversationID,
		AIAssistant:            store.AssistantType(config.DefaultAIAssistant),
	}

	if mctx.ParentConversationID != "" {
		if parent, perr := o.Stores.Conversations.Get(ctx, mctx.ParentConversationID); perr == nil {
			conv.CodebaseID = parent.CodebaseID
			conv.Cwd = parent.Cwd
			conv.AIAssistant = parent.AIAssistant
		} else if !errors.Is(perr, store.ErrNotFound) {
			return nil, fmt.Errorf("load parent conversation: %w", perr)
		}
	}

	if err := o.Stores.Conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// route implements the remaining branch of §2's flow once the conversation
// is resolved: catalogue commands go to the Command Handler; everything
// else is offered to the Workflow Engine's routing, falling back to a
// plain, bookkeeping-free assistant invocation when the engine declines it.
func (o *Orchestrator) route(ctx context.Context, conv *store.Conversation, text string, adapter adapterapi.Adapter) (string, error) {
	if strings.HasPrefix(text, "/") {
		name, _, ok := commands.ParseCommand(text)
		if ok && commands.IsCatalogueCommand(name) {
			result := o.Commands.Handle(ctx, conv, text)
			return result.Message, nil
		}
	}

	handled, err := o.Workflow.HandleMessage(ctx, conv, text, adapter)
	if err != nil {
		return "", err
	}
	if handled {
		return "", nil
	}

	return o.invokePlain(ctx, conv, text, adapter)
}

// invokePlain runs the assistant directly with no Workflow Run bookkeeping,
// resuming the conversation's active session if one exists — the §4.5 rule
// 3 fallback for messages that match neither a command nor a workflow name.
func (o *Orchestrator) invokePlain(ctx context.Context, conv *store.Conversation, text string, adapter adapterapi.Adapter) (string, error) {
	client, err := o.Workflow.Assistants(conv.AIAssistant)
	if err != nil {
		return "", fmt.Errorf("resolve assistant client: %w", err)
	}

	sess, err := o.Stores.Sessions.GetActive(ctx, conv.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load active session: %w", err)
	}

	workingDir := ""
	if conv.Cwd != nil {
		workingDir = *conv.Cwd
	}
	resumeID := ""
	if sess != nil {
		resumeID = sess.AssistantSessionID
	}

	res, err := client.Invoke(ctx, adapterapi.InvokeRequest{
		Prompt:            text,
		WorkingDirectory:  workingDir,
		SessionIDToResume: resumeID,
		AssistantType:     string(conv.AIAssistant),
	})
	if err != nil {
		return "", fmt.Errorf("assistant invocation: %w", err)
	}

	if res.SessionID != "" {
		if sess != nil {
			if err := o.Stores.Sessions.SetAssistantSessionID(ctx, sess.ID, res.SessionID); err != nil {
				slog.Warn("failed to persist session id", "conversation_id", conv.ID, "error", err)
			}
		} else {
			newSess := &store.Session{
				ConversationID:     conv.ID,
				CodebaseID:         conv.CodebaseID,
				AIAssistant:        conv.AIAssistant,
				AssistantSessionID: res.SessionID,
				Active:             true,
				Metadata:           store.Metadata{},
			}
			if err := o.Stores.Sessions.Create(ctx, newSess); err != nil {
				slog.Warn("failed to create session", "conversation_id", conv.ID, "error", err)
			}
		}
	}

	if res.Stream != nil {
		for chunk := range res.Stream {
			if err := adapter.SendMessage(ctx, conv.PlatformConversationID, chunk); err != nil {
				slog.Warn("adapter send failed during stream", "conversation_id", conv.ID, "error", err)
			}
		}
		return "", nil
	}
	return res.TextOutput, nil
}
