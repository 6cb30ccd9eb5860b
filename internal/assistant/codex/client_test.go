package codex

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
		Model:             "gpt-5-codex",
	})

	assert.Equal(t, []string{"exec", "--json", "--skip-git-repo-check", "resume", "sess-1", "--model", "gpt-5-codex", "do the thing"}, args)
}

func TestBuildArgs_OmitsOptionalFlagsWhenUnset(t *testing.T) {
	args := buildArgs(adapterapi.InvokeRequest{Prompt: "hello"})

	assert.Equal(t, []string{"exec", "--json", "--skip-git-repo-check", "hello"}, args)
}

func TestResultEnvelope_ParsesTaskCompleteEvent(t *testing.T) {
	raw := `{"type":"task_complete","message":"done","session_id":"abc-123"}`
	var ev resultEnvelope
	assert.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "task_complete", ev.Type)
	assert.Equal(t, "done", ev.Message)
	assert.Equal(t, "abc-123", ev.SessionID)
}

func TestResultEnvelope_ParsesErrorEvent(t *testing.T) {
	raw := `{"type":"error","error":"rate limited"}`
	var ev resultEnvelope
	assert.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "rate limited", ev.Error)
}
