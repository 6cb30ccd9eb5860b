package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// WorkflowRunStore implements store.WorkflowRunStore.
type WorkflowRunStore struct {
	db *sql.DB
}

func NewWorkflowRunStore(db *sql.DB) *WorkflowRunStore { return &WorkflowRunStore{db: db} }

const runColumns = `id, workflow_name, conversation_id, codebase_id, current_step_index, status, user_message, metadata, started_at, completed_at, last_activity_at`

func (s *WorkflowRunStore) Create(ctx context.Context, r *store.WorkflowRun) error {
	if r.ID == "" {
		r.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	r.LastActivityAt = now
	if r.Status == "" {
		r.Status = store.RunRunning
	}
	metaJSON, err := marshalMetadata(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(id, workflow_name, conversation_id, codebase_id, current_step_index, status, user_message, metadata, started_at, completed_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.WorkflowName, r.ConversationID, r.CodebaseID, r.CurrentStepIndex,
		string(r.Status), r.UserMessage, metaJSON, r.StartedAt, r.CompletedAt, r.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow run: %w", err)
	}
	return nil
}

func scanRun(scan func(...any) error) (*store.WorkflowRun, error) {
	var r store.WorkflowRun
	var status string
	var metaJSON []byte

	err := scan(&r.ID, &r.WorkflowName, &r.ConversationID, &r.CodebaseID, &r.CurrentStepIndex,
		&status, &r.UserMessage, &metaJSON, &r.StartedAt, &r.CompletedAt, &r.LastActivityAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow run: %w", err)
	}
	r.Status = store.RunStatus(status)
	r.Metadata = store.Metadata{}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &r.Metadata)
	}
	return &r, nil
}

func (s *WorkflowRunStore) Get(ctx context.Context, id string) (*store.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)
	return scanRun(row.Scan)
}

// GetRunning returns the conversation's running workflow; I2 (at most one)
// is enforced by the partial unique index in migration 000006.
func (s *WorkflowRunStore) GetRunning(ctx context.Context, conversationID string) (*store.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE conversation_id = $1 AND status = 'running'`,
		conversationID)
	return scanRun(row.Scan)
}

func (s *WorkflowRunStore) AdvanceStep(ctx context.Context, id string, stepIndex int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET current_step_index = $1, last_activity_at = now() WHERE id = $2`,
		stepIndex, id)
	if err != nil {
		return fmt.Errorf("advance workflow step: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

func (s *WorkflowRunStore) MergeMetadata(ctx context.Context, id string, patch store.Metadata) error {
	patchJSON, err := marshalMetadata(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET metadata = metadata || $1::jsonb WHERE id = $2`, patchJSON, id)
	if err != nil {
		return fmt.Errorf("merge workflow run metadata: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

// Complete is idempotent: calling it again on an already-terminal run just
// overwrites status/completed_at rather than erroring (§7).
func (s *WorkflowRunStore) Complete(ctx context.Context, id string, status store.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = $1, completed_at = now(), last_activity_at = now() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("complete workflow run: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

// TouchActivity is best-effort: callers log a returned error, they never
// abort a workflow step because the heartbeat write failed (§4.5, §7).
func (s *WorkflowRunStore) TouchActivity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workflow_runs SET last_activity_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch workflow run activity: %w", err)
	}
	return nil
}
