package isolation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// fakeEnvStore is an in-memory store.IsolationEnvStore stand-in. Ensure's
// PR/issue reuse branch (§4.3 step 2) never shells out to git, so it is
// exercisable without a real repository.
type fakeEnvStore struct {
	byID map[string]*store.IsolationEnvironment
}

func newFakeEnvStore() *fakeEnvStore {
	return &fakeEnvStore{byID: map[string]*store.IsolationEnvironment{}}
}

func (f *fakeEnvStore) Create(_ context.Context, e *store.IsolationEnvironment) error {
	e.ID = uuid.NewString()
	e.Status = store.EnvActive
	if e.Metadata == nil {
		e.Metadata = store.Metadata{}
	}
	f.byID[e.ID] = e
	return nil
}

func (f *fakeEnvStore) Get(_ context.Context, id string) (*store.IsolationEnvironment, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (f *fakeEnvStore) FindByWorkflow(_ context.Context, codebaseID string, workflowType store.WorkflowType, workflowID string) (*store.IsolationEnvironment, error) {
	for _, e := range f.byID {
		if e.Status == store.EnvActive && e.CodebaseID == codebaseID && e.WorkflowType == workflowType && e.WorkflowID == workflowID {
			return e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeEnvStore) FindActiveByRelatedIssue(_ context.Context, codebaseID string, issueNumber int) (*store.IsolationEnvironment, error) {
	for _, e := range f.byID {
		if e.Status != store.EnvActive || e.CodebaseID != codebaseID {
			continue
		}
		related, _ := e.Metadata["related_issues"].([]any)
		for _, n := range related {
			if v, ok := n.(int); ok && v == issueNumber {
				return e, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeEnvStore) ListActive(_ context.Context, codebaseID string) ([]*store.IsolationEnvironment, error) {
	var out []*store.IsolationEnvironment
	for _, e := range f.byID {
		if e.Status == store.EnvActive && e.CodebaseID == codebaseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEnvStore) MergeMetadata(_ context.Context, id string, patch store.Metadata) error {
	e, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range patch {
		e.Metadata[k] = v
	}
	return nil
}

func (f *fakeEnvStore) UpdateStatus(_ context.Context, id string, status store.EnvStatus) error {
	e, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = status
	return nil
}

func (f *fakeEnvStore) FindStaleEnvironments(context.Context, int) ([]*store.IsolationEnvironment, error) {
	return nil, nil
}

func (f *fakeEnvStore) ReferencingConversations(context.Context, string) ([]string, error) {
	return nil, nil
}

// seedIssueEnv plants an already-active issue environment the way
// Manager.create would, self-tagged with related_issues=[issueNum].
func seedIssueEnv(f *fakeEnvStore, codebaseID string, issueNum int) *store.IsolationEnvironment {
	env := &store.IsolationEnvironment{
		ID:           uuid.NewString(),
		CodebaseID:   codebaseID,
		WorkflowType: store.WorkflowIssue,
		WorkflowID:   "issue-42",
		Provider:     "worktree",
		WorkingPath:  "/repo/worktrees/issue-42",
		BranchName:   "issue-42",
		Status:       store.EnvActive,
		Metadata:     store.Metadata{"related_issues": []any{issueNum}},
	}
	f.byID[env.ID] = env
	return env
}

func TestManager_Ensure_PRReusesRelatedIssueWorktree(t *testing.T) {
	envs := newFakeEnvStore()
	issueEnv := seedIssueEnv(envs, "codebase-1", 42)

	m := NewManager(envs, 0, nil)
	got, err := m.Ensure(context.Background(), EnsureParams{
		CodebaseID:        "codebase-1",
		CanonicalRepoPath: "/repo",
		WorkflowType:      store.WorkflowPR,
		WorkflowID:        "pr-7",
		RelatedIssues:     []int{42},
		CreatedByPlatform: "discord",
	})

	require.NoError(t, err)
	assert.Equal(t, issueEnv.ID, got.ID, "PR should reuse the issue's environment rather than create a new one")
	assert.Equal(t, "pr-7", got.Metadata["pr_number"], "reused environment must be annotated with the PR number")
}

func TestManager_Ensure_PRReuseIgnoresUnrelatedIssues(t *testing.T) {
	envs := newFakeEnvStore()
	seedIssueEnv(envs, "codebase-1", 42)

	m := NewManager(envs, 0, nil)
	_, err := m.Ensure(context.Background(), EnsureParams{
		CodebaseID:        "codebase-1",
		CanonicalRepoPath: "/repo",
		WorkflowType:      store.WorkflowPR,
		WorkflowID:        "pr-9",
		RelatedIssues:     []int{99},
		CreatedByPlatform: "discord",
	})

	// No related issue 99 worktree exists and there's no git repo behind
	// /repo in this test, so falling through to create() must fail instead
	// of silently matching an unrelated issue's environment.
	require.Error(t, err)
}

