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

// IsolationEnvStore implements store.IsolationEnvStore.
type IsolationEnvStore struct {
	db *sql.DB
}

func NewIsolationEnvStore(db *sql.DB) *IsolationEnvStore { return &IsolationEnvStore{db: db} }

const envColumns = `id, codebase_id, workflow_type, workflow_id, provider, working_path, branch_name, status, created_by_platform, metadata, created_at`

func (s *IsolationEnvStore) Create(ctx context.Context, e *store.IsolationEnvironment) error {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = store.EnvActive
	}
	if e.Provider == "" {
		e.Provider = "worktree"
	}
	metaJSON, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal env metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO isolation_environments
			(id, codebase_id, workflow_type, workflow_id, provider, working_path, branch_name, status, created_by_platform, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.CodebaseID, string(e.WorkflowType), e.WorkflowID, e.Provider, e.WorkingPath,
		e.BranchName, string(e.Status), e.CreatedByPlatform, metaJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert isolation environment: %w", err)
	}
	return nil
}

func scanEnv(scan func(...any) error) (*store.IsolationEnvironment, error) {
	var e store.IsolationEnvironment
	var workflowType, status string
	var metaJSON []byte

	err := scan(&e.ID, &e.CodebaseID, &workflowType, &e.WorkflowID, &e.Provider, &e.WorkingPath,
		&e.BranchName, &status, &e.CreatedByPlatform, &metaJSON, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan isolation environment: %w", err)
	}
	e.WorkflowType = store.WorkflowType(workflowType)
	e.Status = store.EnvStatus(status)
	e.Metadata = store.Metadata{}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &e.Metadata)
	}
	return &e, nil
}

func (s *IsolationEnvStore) Get(ctx context.Context, id string) (*store.IsolationEnvironment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+envColumns+` FROM isolation_environments WHERE id = $1`, id)
	return scanEnv(row.Scan)
}

// FindByWorkflow satisfies I4: at most one active environment per
// (codebase, workflow type, workflow id) identity.
func (s *IsolationEnvStore) FindByWorkflow(ctx context.Context, codebaseID string, workflowType store.WorkflowType, workflowID string) (*store.IsolationEnvironment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+envColumns+` FROM isolation_environments
		 WHERE codebase_id = $1 AND workflow_type = $2 AND workflow_id = $3 AND status = 'active'`,
		codebaseID, string(workflowType), workflowID)
	return scanEnv(row.Scan)
}

// FindActiveByRelatedIssue scans metadata's related_issues array, which the
// Isolation Manager writes when it creates an environment (an issue worktree
// tags itself with its own number).
func (s *IsolationEnvStore) FindActiveByRelatedIssue(ctx context.Context, codebaseID string, issueNumber int) (*store.IsolationEnvironment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+envColumns+` FROM isolation_environments
		 WHERE codebase_id = $1 AND status = 'active'
		   AND metadata -> 'related_issues' @> to_jsonb($2::int)`,
		codebaseID, issueNumber)
	return scanEnv(row.Scan)
}

func (s *IsolationEnvStore) ListActive(ctx context.Context, codebaseID string) ([]*store.IsolationEnvironment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+envColumns+` FROM isolation_environments WHERE codebase_id = $1 AND status = 'active' ORDER BY created_at`,
		codebaseID)
	if err != nil {
		return nil, fmt.Errorf("list active environments: %w", err)
	}
	defer rows.Close()

	var out []*store.IsolationEnvironment
	for rows.Next() {
		e, err := scanEnv(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *IsolationEnvStore) MergeMetadata(ctx context.Context, id string, patch store.Metadata) error {
	patchJSON, err := marshalMetadata(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE isolation_environments SET metadata = metadata || $1::jsonb WHERE id = $2`,
		patchJSON, id)
	if err != nil {
		return fmt.Errorf("merge environment metadata: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

// UpdateStatus is idempotent: re-marking an already-destroyed environment as
// destroyed is a no-op rather than an error, so retrying a cleanup pass after
// a partial failure never itself fails.
func (s *IsolationEnvStore) UpdateStatus(ctx context.Context, id string, status store.EnvStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE isolation_environments SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update environment status: %w", err)
	}
	return nil
}

// FindStaleEnvironments returns active, non-telegram-created environments
// whose every referencing conversation (or none at all) has had no activity
// in the last `days` days — the telegram exception (P7) excludes
// created_by_platform = 'telegram' outright regardless of age.
func (s *IsolationEnvStore) FindStaleEnvironments(ctx context.Context, days int) ([]*store.IsolationEnvironment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+envColumns+`
		FROM isolation_environments e
		WHERE e.status = 'active'
		  AND e.created_by_platform <> 'telegram'
		  AND NOT EXISTS (
			SELECT 1 FROM conversations c
			WHERE c.isolation_env_id = e.id AND c.last_activity_at > now() - ($1 || ' days')::interval
		  )
		  AND e.created_at < now() - ($1 || ' days')::interval
		ORDER BY e.created_at`,
		days)
	if err != nil {
		return nil, fmt.Errorf("find stale environments: %w", err)
	}
	defer rows.Close()

	var out []*store.IsolationEnvironment
	for rows.Next() {
		e, err := scanEnv(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReferencingConversations returns the conversation IDs whose isolation_env_id
// points at envID — callers must null these refs (I5) before the environment
// row is removed.
func (s *IsolationEnvStore) ReferencingConversations(ctx context.Context, envID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations WHERE isolation_env_id = $1`, envID)
	if err != nil {
		return nil, fmt.Errorf("find referencing conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
