// Package claude implements the Assistant Client interface (§6.2) by
// exec'ing the `claude` CLI with its working directory set to the
// invocation's isolated git worktree (§1's core architectural guarantee).
package claude

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

const defaultBinary = "claude"

// Client implements adapterapi.AssistantClient for assistant_type="claude".
type Client struct {
	runner *cliproc.Runner
}

// New constructs a Claude Assistant Client. The binary resolved is
// CLAUDE_CLI_PATH if set, otherwise "claude" on PATH.
func New() *Client {
	bin := os.Getenv("CLAUDE_CLI_PATH")
	if bin == "" {
		bin = defaultBinary
	}
	return &Client{runner: cliproc.New(bin)}
}

// resultEnvelope is the `claude -p --output-format json` response shape.
type resultEnvelope struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

func buildArgs(req adapterapi.InvokeRequest, outputFormat string) []string {
	args := []string{"-p", "--output-format", outputFormat}
	if req.SessionIDToResume != "" {
		args = append(args, "--resume", req.SessionIDToResume)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, req.Prompt)
}

// Invoke implements adapterapi.AssistantClient (§6.2): runs `claude -p` with
// cmd.Dir set to req.WorkingDirectory, the isolated worktree provided by the
// Isolation Manager.
func (c *Client) Invoke(ctx context.Context, req adapterapi.InvokeRequest) (adapterapi.InvokeResult, error) {
	if req.WorkingDirectory == "" {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude invocation: working directory is required")
	}

	out, err := c.runner.Invoke(ctx, req.WorkingDirectory, buildArgs(req, "json")...)
	if err != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude invocation: %w", err)
	}

	var env resultEnvelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude invocation: parse output: %w", err)
	}
	if env.IsError {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude invocation: %s", env.Result)
	}

	return adapterapi.InvokeResult{
		SessionID:  session.Resolve(env.SessionID),
		TextOutput: env.Result,
	}, nil
}

// streamEvent is one line of `claude -p --output-format stream-json` ndjson
// output: either an incremental assistant-message chunk or the terminal
// "result" event carrying the resumable session id.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

// InvokeStreaming runs the same request in the CLI's stream-json mode,
// feeding text chunks to onChunk as they arrive — used by adapters whose
// StreamingMode is "stream" (§6.1). It is not part of the AssistantClient
// interface itself; callers that only need the consolidated text should use
// Invoke.
func (c *Client) InvokeStreaming(ctx context.Context, req adapterapi.InvokeRequest, onChunk func(string)) (adapterapi.InvokeResult, error) {
	if req.WorkingDirectory == "" {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude streaming invocation: working directory is required")
	}

	var final streamEvent
	var textOutput bytes.Buffer
	var parseErr error

	err := c.runner.Stream(ctx, req.WorkingDirectory, func(line string) {
		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			parseErr = fmt.Errorf("parse stream event: %w", err)
			return
		}
		switch ev.Type {
		case "assistant":
			if ev.Message == nil {
				return
			}
			for _, part := range ev.Message.Content {
				if part.Type != "text" || part.Text == "" {
					continue
				}
				textOutput.WriteString(part.Text)
				if onChunk != nil {
					onChunk(part.Text)
				}
			}
		case "result":
			final = ev
		}
	}, buildArgs(req, "stream-json")...)
	if err != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude streaming invocation: %w", err)
	}
	if parseErr != nil {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude streaming invocation: %w", parseErr)
	}
	if final.IsError {
		return adapterapi.InvokeResult{}, fmt.Errorf("claude streaming invocation: %s", final.Result)
	}

	text := final.Result
	if text == "" {
		text = textOutput.String()
	}
	return adapterapi.InvokeResult{
		SessionID:  session.Resolve(final.SessionID),
		TextOutput: text,
	}, nil
}
