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

// CodebaseStore implements store.CodebaseStore.
type CodebaseStore struct {
	db *sql.DB
}

func NewCodebaseStore(db *sql.DB) *CodebaseStore { return &CodebaseStore{db: db} }

func (s *CodebaseStore) Create(ctx context.Context, cb *store.Codebase) error {
	if cb.ID == "" {
		cb.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	cb.CreatedAt, cb.UpdatedAt = now, now
	if cb.Commands == nil {
		cb.Commands = map[string]store.CommandRef{}
	}
	commandsJSON, err := json.Marshal(cb.Commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO codebases (id, name, repository_url, default_cwd, ai_assistant_type, commands, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cb.ID, cb.Name, nilStr(cb.RepositoryURL), cb.DefaultCwd, string(cb.AIAssistant), commandsJSON, cb.CreatedAt, cb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert codebase: %w", err)
	}
	return nil
}

func (s *CodebaseStore) scanRow(row *sql.Row) (*store.Codebase, error) {
	var cb store.Codebase
	var repoURL *string
	var assistant string
	var commandsJSON []byte

	err := row.Scan(&cb.ID, &cb.Name, &repoURL, &cb.DefaultCwd, &assistant, &commandsJSON, &cb.CreatedAt, &cb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan codebase: %w", err)
	}

	cb.RepositoryURL = derefStr(repoURL)
	cb.AIAssistant = store.AssistantType(assistant)
	cb.Commands = map[string]store.CommandRef{}
	if len(commandsJSON) > 0 {
		_ = json.Unmarshal(commandsJSON, &cb.Commands)
	}
	return &cb, nil
}

const codebaseColumns = `id, name, repository_url, default_cwd, ai_assistant_type, commands, created_at, updated_at`

func (s *CodebaseStore) Get(ctx context.Context, id string) (*store.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+codebaseColumns+` FROM codebases WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *CodebaseStore) GetByName(ctx context.Context, name string) (*store.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+codebaseColumns+` FROM codebases WHERE name = $1`, name)
	return s.scanRow(row)
}

func (s *CodebaseStore) GetByURL(ctx context.Context, url string) (*store.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+codebaseColumns+` FROM codebases WHERE repository_url = $1`, url)
	return s.scanRow(row)
}

func (s *CodebaseStore) GetByDefaultCwd(ctx context.Context, cwd string) (*store.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+codebaseColumns+` FROM codebases WHERE default_cwd = $1`, cwd)
	return s.scanRow(row)
}

func (s *CodebaseStore) List(ctx context.Context) ([]*store.Codebase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+codebaseColumns+` FROM codebases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list codebases: %w", err)
	}
	defer rows.Close()

	var out []*store.Codebase
	for rows.Next() {
		var cb store.Codebase
		var repoURL *string
		var assistant string
		var commandsJSON []byte
		if err := rows.Scan(&cb.ID, &cb.Name, &repoURL, &cb.DefaultCwd, &assistant, &commandsJSON, &cb.CreatedAt, &cb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan codebase row: %w", err)
		}
		cb.RepositoryURL = derefStr(repoURL)
		cb.AIAssistant = store.AssistantType(assistant)
		cb.Commands = map[string]store.CommandRef{}
		if len(commandsJSON) > 0 {
			_ = json.Unmarshal(commandsJSON, &cb.Commands)
		}
		out = append(out, &cb)
	}
	return out, rows.Err()
}

// SetCommands replaces the whole map — callers merge in memory first (I6).
func (s *CodebaseStore) SetCommands(ctx context.Context, id string, commands map[string]store.CommandRef) error {
	commandsJSON, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE codebases SET commands = $1, updated_at = now() WHERE id = $2`, commandsJSON, id)
	if err != nil {
		return fmt.Errorf("update codebase commands: %w", err)
	}
	return checkAffected(res, store.ErrNotFound)
}

func (s *CodebaseStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM codebases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete codebase: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
