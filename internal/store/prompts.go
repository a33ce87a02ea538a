package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const promptColumns = "id, name, description, prompt_type, system_prompt, icon_path, is_active, created_at"

func scanPrompt(row rowScanner) (*Prompt, error) {
	var p Prompt
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PromptType, &p.SystemPrompt, &p.IconPath, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.query(ctx, s.db, "SELECT "+promptColumns+" FROM prompts WHERE is_active = TRUE ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	prompts := []Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt row: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// GetPromptByType returns nil when the topic has no catalog entry.
func (s *Store) GetPromptByType(ctx context.Context, t PromptType) (*Prompt, error) {
	p, err := scanPrompt(s.queryRow(ctx, s.db, "SELECT "+promptColumns+" FROM prompts WHERE prompt_type = ?", t))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return p, nil
}

// SeedPrompts inserts the prompts whose topic is not yet present and
// returns how many were added.
func (s *Store) SeedPrompts(ctx context.Context, prompts []Prompt) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range prompts {
			now := utcNow()
			res, err := s.exec(ctx, tx, `
                INSERT INTO prompts (name, description, prompt_type, system_prompt, icon_path, is_active, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, TRUE, ?, ?)
                ON CONFLICT (prompt_type) DO NOTHING`,
				p.Name, p.Description, p.PromptType, p.SystemPrompt, p.IconPath, now, now)
			if err != nil {
				return fmt.Errorf("failed to seed prompt %s: %w", p.PromptType, err)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
