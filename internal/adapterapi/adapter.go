// Package adapterapi defines the two interfaces the core programs against
// (§6.1, §6.2): the Platform Adapter, supplied by whatever chat surface is
// relaying messages, and the Assistant Client, supplied by whatever CLI or
// API actually runs the AI assistant.
package adapterapi

import "context"

// StreamingMode hints to the Workflow Engine how an adapter prefers output.
type StreamingMode string

const (
	StreamingModeStream StreamingMode = "stream"
	StreamingModeBatch  StreamingMode = "batch"
)

// MessageContext carries optional threading metadata passed to onMessage
// handlers, per §6.1's conversation identity and context inheritance rules.
type MessageContext struct {
	ThreadContext       string
	ParentConversationID string
}

// MessageHandler is the callback an adapter invokes for each inbound
// message it receives.
type MessageHandler func(ctx context.Context, conversationID, text string, mctx MessageContext)

// Adapter is the Platform Adapter interface (§6.1). Implementations are
// thin: map platform events to (conversationId, text), call back into the
// orchestrator, send replies. They carry none of the core's state.
type Adapter interface {
	PlatformType() string
	StreamingMode() StreamingMode

	// SendMessage delivers text to conversationID; the adapter is
	// responsible for chunking to platform limits and formatting.
	SendMessage(ctx context.Context, conversationID, text string) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// EnsureThread returns an id future replies should target; may create
	// a thread. Adapters without threading return originalID unchanged.
	EnsureThread(ctx context.Context, originalID string, messageContext MessageContext) (string, error)

	OnMessage(handler MessageHandler)
}

// InvokeRequest is the Assistant Client invocation request (§6.2).
type InvokeRequest struct {
	Prompt            string
	WorkingDirectory  string
	SessionIDToResume string
	AssistantType     string
	Model             string
}

// InvokeResult is the Assistant Client invocation result (§6.2). Stream is
// non-nil only in streaming mode; the core does not differentiate
// functionally between the two, so callers that only need the final text
// may ignore Stream and read TextOutput once invocation completes.
type InvokeResult struct {
	SessionID  string
	TextOutput string
	Stream     <-chan string
}

// AssistantClient is the Assistant Client interface (§6.2).
type AssistantClient interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}
