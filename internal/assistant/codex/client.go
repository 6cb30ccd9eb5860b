// Package codex implements the Assistant Client interface (§6.2) by
// exec'ing the `codex` CLI with its working directory set to the
// invocation's isolated git worktree (§1's core architectural guarantee).
package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
	"github.com/nextlevelbuilder/archon/internal/assistant/cliproc"
	"github.com/nextlevelbuilder/archon/internal/assistant/session"
)

const defaultBinary = "codex"

// Client implements adapterapi.AssistantClient for assistant_type="codex".
type Client struct {
	runner *cliproc.Runner
}

// New constructs a Codex Assistant Client. The binary resolved is
// CODEX_CLI_PATH if set, otherwise "codex" on PATH.
func New() *Client {
	bin := os.Getenv("CODEX_CLI_PATH")
	if bin == "" {
		bin = defaultBinary
	}
	return &Client{runner: cliproc.New(bin)}
}

// resultEnvelope is the `codex exec --json` final-message response shape.
type resultEnvelope struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

func buildArgs(req adapterapi.InvokeRequest) []string {
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if req.SessionIDToResume != "" {
		args = append(args, "resume", req.SessionIDToResume)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, req.Prompt)
}

// Invoke implements adapterapi.AssistantClient (§6.2): runs `codex exec`
// with cmd.Dir set to req.WorkingDirectory, the isolated worktree provided
// by the Isolation Manager. codex exec's --json output is ndjson; the
// response we report back is assembled from the stream just as
// InvokeStreaming's would be, simply discarding intermediate chunks.
func (c *Client) Invoke(ctx context.Context, req adapterapi.InvokeRequest) (adapterapi.InvokeResult, error) {
	return c.invoke(ctx, req, nil)
}

// InvokeStreaming runs the same request, feeding message chunks to onChunk
// as they arrive — used by adapters whose StreamingMode is "stream" (§6.1).
// It is not part of the AssistantClient interface itself; callers that only
// need the consolidated text should use Invoke.
func (c *Client) InvokeStreaming(ctx context.Context, req adapterapi.InvokeRequest, onChunk func(string)) (adapterapi.InvokeResult, error) {
	return c.invoke(ctx, req, onChunk)
}

func (c *Client) invoke(ctx context.Context, req adapterapi.InvokeRequest, onChunk func(string)) (adapterapi.InvokeResult, error) {
	if req.WorkingDirectory == "" {
		return adapterapi.InvokeResult{}, fmt.Errorf("codex invocation: working directory is required")
	}

	var final resultEnvelope
	var textOutput bytes.Buffer
	var parseErr error

	err := c.runner.Stream(ctx, req.WorkingDirectory, func(line string) {
		var ev resultEnvelope
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			parseErr = fmt.Errorf("parse output line: %w", err)
			return
		}
		switch ev.Type {
		case "agent_message_delta":
			if ev.Message == "" {
				return
			}
			textOutput.WriteString(ev.Message)
			if onChunk != nil {
				onChunk(ev.Message)
			}
		case "task_complete", "error":
			final = ev
		}
	}, buildArgs(req)...)
	if err != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("codex invocation: %w", err)
	}
	if parseErr != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("codex invocation: %w", parseErr)
	}
	if final.Type == "error" {
		return adapterapi.InvokeResult{}, fmt.Errorf("codex invocation: %s", final.Error)
	}

	text := final.Message
	if text == "" {
		text = textOutput.String()
	}
	return adapterapi.InvokeResult{
		SessionID:  session.Resolve(final.SessionID),
		TextOutput: text,
	}, nil
}
