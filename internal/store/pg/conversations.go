package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// ConversationStore implements store.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore { return &ConversationStore{db: db} }

const conversationColumns = `id, platform_type, platform_conversation_id, ai_assistant_type, codebase_id, cwd, isolation_env_id, last_activity_at, created_at, updated_at`

func (s *ConversationStore) Create(ctx context.Context, c *store.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, platform_type, platform_conversation_id, ai_assistant_type, codebase_id, cwd, isolation_env_id, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.PlatformType, c.PlatformConversationID, string(c.AIAssistant),
		c.CodebaseID, c.Cwd, c.IsolationEnvID, c.LastActivityAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) scanRow(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var assistant string
	err := row.Scan(&c.ID, &c.PlatformType, &c.PlatformConversationID, &assistant,
		&c.CodebaseID, &c.Cwd, &c.IsolationEnvID, &c.LastActivityAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.AIAssistant = store.AssistantType(assistant)
	return &c, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *ConversationStore) GetByPlatform(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE platform_type = $1 AND platform_conversation_id = $2`,
		platformType, platformConversationID)
	return s.scanRow(row)
}

// Update builds SET clauses only for provided fields and fails with
// ErrConversationNotFound when the affected-row count is 0 (§4.2).
func (s *ConversationStore) Update(ctx context.Context, id string, patch store.ConversationPatch) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	argN := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argN+1))
		args = append(args, val)
		argN++
	}

	if patch.AIAssistant != nil {
		add("ai_assistant_type", string(*patch.AIAssistant))
	}
	if patch.ClearCodebase {
		add("codebase_id", nil)
	} else if patch.CodebaseID != nil {
		add("codebase_id", *patch.CodebaseID)
	}
	if patch.ClearCwd {
		add("cwd", nil)
	} else if patch.Cwd != nil {
		add("cwd", *patch.Cwd)
	}
	if patch.ClearEnv {
		add("isolation_env_id", nil)
	} else if patch.IsolationEnvID != nil {
		add("isolation_env_id", *patch.IsolationEnvID)
	}
	if patch.LastActivityAt != nil {
		add("last_activity_at", *patch.LastActivityAt)
	}

	query := fmt.Sprintf(`UPDATE conversations SET %s WHERE id = $1`, strings.Join(sets, ", "))
	fullArgs := append([]any{id}, args...)

	res, err := s.db.ExecContext(ctx, query, fullArgs...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return checkAffected(res, store.ErrConversationNotFound)
}

func (s *ConversationStore) ClearCodebaseRefs(ctx context.Context, codebaseID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET codebase_id = NULL, updated_at = now() WHERE codebase_id = $1`, codebaseID)
	if err != nil {
		return fmt.Errorf("clear codebase refs: %w", err)
	}
	return nil
}

func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
