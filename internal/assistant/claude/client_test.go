package claude

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
)

func TestBuildArgs_IncludesResumeAndModelWhenSet(t *testing.T) {
	args := buildArgs(adapterapi.InvokeRequest{
		Prompt:            "do the thing",
		SessionIDToResume: "sess-1",
		Model:             "claude-opus-4-7",
	}, "json")

	assert.Equal(t, []string{"-p", "--output-format", "json", "--resume", "sess-1", "--model", "claude-opus-4-7", "do the thing"}, args)
}

func TestBuildArgs_OmitsOptionalFlagsWhenUnset(t *testing.T) {
	args := buildArgs(adapterapi.InvokeRequest{Prompt: "hello"}, "stream-json")

	assert.Equal(t, []string{"-p", "--output-format", "stream-json", "hello"}, args)
}

func TestResultEnvelope_ParsesJSONOutput(t *testing.T) {
	raw := `{"result":"done","session_id":"abc-123","is_error":false}`
	var env resultEnvelope
	assert.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "done", env.Result)
	assert.Equal(t, "abc-123", env.SessionID)
	assert.False(t, env.IsError)
}

func TestStreamEvent_ParsesAssistantTextChunk(t *testing.T) {
	raw := `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`
	var ev streamEvent
	assert.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "assistant", ev.Type)
	assert.Len(t, ev.Message.Content, 1)
	assert.Equal(t, "hi", ev.Message.Content[0].Text)
}
