package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/archon/internal/store"
)

func TestParseWorktreeCreateArgs_BareBranchIsTask(t *testing.T) {
	wt, workflowID, related, errRes := parseWorktreeCreateArgs([]string{"my-feature"})

	require.Nil(t, errRes)
	assert.Equal(t, store.WorkflowTask, wt)
	assert.Equal(t, "task-my-feature", workflowID)
	assert.Nil(t, related)
}

func TestParseWorktreeCreateArgs_RejectsInvalidBranchName(t *testing.T) {
	_, _, _, errRes := parseWorktreeCreateArgs([]string{"bad branch name"})

	require.NotNil(t, errRes)
	assert.False(t, errRes.Success)
}

func TestParseWorktreeCreateArgs_Issue(t *testing.T) {
	wt, workflowID, related, errRes := parseWorktreeCreateArgs([]string{"--issue", "42"})

	require.Nil(t, errRes)
	assert.Equal(t, store.WorkflowIssue, wt)
	assert.Equal(t, "issue-42", workflowID)
	assert.Equal(t, []int{42}, related)
}

func TestParseWorktreeCreateArgs_IssueMissingNumber(t *testing.T) {
	_, _, _, errRes := parseWorktreeCreateArgs([]string{"--issue"})

	require.NotNil(t, errRes)
	assert.False(t, errRes.Success)
}

func TestParseWorktreeCreateArgs_IssueNonNumeric(t *testing.T) {
	_, _, _, errRes := parseWorktreeCreateArgs([]string{"--issue", "abc"})

	require.NotNil(t, errRes)
	assert.False(t, errRes.Success)
}

func TestParseWorktreeCreateArgs_PRWithRelated(t *testing.T) {
	wt, workflowID, related, errRes := parseWorktreeCreateArgs([]string{"--pr", "7", "--related", "42, 43"})

	require.Nil(t, errRes)
	assert.Equal(t, store.WorkflowPR, wt)
	assert.Equal(t, "pr-7", workflowID)
	assert.Equal(t, []int{42, 43}, related)
}

func TestParseWorktreeCreateArgs_PRWithoutRelated(t *testing.T) {
	wt, workflowID, related, errRes := parseWorktreeCreateArgs([]string{"--pr", "7"})

	require.Nil(t, errRes)
	assert.Equal(t, store.WorkflowPR, wt)
	assert.Equal(t, "pr-7", workflowID)
	assert.Nil(t, related)
}

func TestParseWorktreeCreateArgs_PRMissingNumber(t *testing.T) {
	_, _, _, errRes := parseWorktreeCreateArgs([]string{"--pr"})

	require.NotNil(t, errRes)
	assert.False(t, errRes.Success)
}

func TestParseWorktreeCreateArgs_PRRelatedNonNumeric(t *testing.T) {
	_, _, _, errRes := parseWorktreeCreateArgs([]string{"--pr", "7", "--related", "abc"})

	require.NotNil(t, errRes)
	assert.False(t, errRes.Success)
}
