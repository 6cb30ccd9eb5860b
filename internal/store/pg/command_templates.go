package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// CommandTemplateStore implements store.CommandTemplateStore.
type CommandTemplateStore struct {
	db *sql.DB
}

func NewCommandTemplateStore(db *sql.DB) *CommandTemplateStore { return &CommandTemplateStore{db: db} }

const templateColumns = `id, name, description, content, created_at, updated_at`

// Upsert inserts or replaces the template by unique name.
func (s *CommandTemplateStore) Upsert(ctx context.Context, t *store.CommandTemplate) error {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_templates (id, name, description, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.Name, nilStr(t.Description), t.Content, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert command template: %w", err)
	}
	return nil
}

func (s *CommandTemplateStore) Get(ctx context.Context, name string) (*store.CommandTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM command_templates WHERE name = $1`, name)
	var t store.CommandTemplate
	var desc *string
	err := row.Scan(&t.ID, &t.Name, &desc, &t.Content, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan command template: %w", err)
	}
	t.Description = derefStr(desc)
	return &t, nil
}

func (s *CommandTemplateStore) List(ctx context.Context) ([]*store.CommandTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM command_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list command templates: %w", err)
	}
	defer rows.Close()

	var out []*store.CommandTemplate
	for rows.Next() {
		var t store.CommandTemplate
		var desc *string
		if err := rows.Scan(&t.ID, &t.Name, &desc, &t.Content, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan command template row: %w", err)
		}
		t.Description = derefStr(desc)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *CommandTemplateStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM command_templates WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete command template: %w", err)
	}
	return nil
}
