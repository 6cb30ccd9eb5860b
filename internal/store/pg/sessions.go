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

// SessionStore implements store.SessionStore. Metadata merges happen with
// `jsonb || $patch` (I7) rather than full replacement, the same idiom the
// teacher's PGSessionStore uses for its in-memory cache — here applied at
// the SQL layer since Sessions have no hot in-process cache requirement.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{db: db} }

const sessionColumns = `id, conversation_id, codebase_id, ai_assistant_type, assistant_session_id, active, metadata, started_at, ended_at`

func (s *SessionStore) Create(ctx context.Context, sess *store.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.Must(uuid.NewV7()).String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	metaJSON, err := marshalMetadata(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, conversation_id, codebase_id, ai_assistant_type, assistant_session_id, active, metadata, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.ConversationID, sess.CodebaseID, string(sess.AIAssistant),
		nilStr(sess.AssistantSessionID), sess.Active, metaJSON, sess.StartedAt, sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) scanRow(row *sql.Row) (*store.Session, error) {
	var sess store.Session
	var assistant string
	var assistantSessionID *string
	var metaJSON []byte

	err := row.Scan(&sess.ID, &sess.ConversationID, &sess.CodebaseID, &assistant,
		&assistantSessionID, &sess.Active, &metaJSON, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.AIAssistant = store.AssistantType(assistant)
	sess.AssistantSessionID = derefStr(assistantSessionID)
	sess.Metadata = store.Metadata{}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &sess.Metadata)
	}
	return &sess, nil
}

func (s *SessionStore) GetActive(ctx context.Context, conversationID string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE conversation_id = $1 AND active = true`, conversationID)
	return s.scanRow(row)
}

func (s *SessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return s.scanRow(row)
}

// Deactivate marks the conversation's active session (if any) inactive.
// Enforces I1 by construction: a new Create always follows a Deactivate in
// the call sites that need exactly one active session.
func (s *SessionStore) Deactivate(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = false, ended_at = now() WHERE conversation_id = $1 AND active = true`,
		conversationID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (s *SessionStore) SetAssistantSessionID(ctx context.Context, id string, assistantSessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET assistant_session_id = $1 WHERE id = $2`, assistantSessionID, id)
	if err != nil {
		return fmt.Errorf("set assistant session id: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

func (s *SessionStore) MergeMetadata(ctx context.Context, id string, patch store.Metadata) error {
	patchJSON, err := marshalMetadata(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET metadata = metadata || $1::jsonb WHERE id = $2`, patchJSON, id)
	if err != nil {
		return fmt.Errorf("merge session metadata: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

func (s *SessionStore) ClearCodebaseRefs(ctx context.Context, codebaseID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET codebase_id = NULL WHERE codebase_id = $1`, codebaseID)
	if err != nil {
		return fmt.Errorf("clear session codebase refs: %w", err)
	}
	return nil
}
