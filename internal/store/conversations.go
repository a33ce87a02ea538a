package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const conversationColumns = `c.id, c.conv_id, c.user_id, c.prompt_id, p.prompt_type, c.title, c.created_at, c.updated_at`

func scanConversation(row rowScanner, extra ...any) (*Conversation, error) {
	var c Conversation
	dest := append([]any{&c.ID, &c.ConvID, &c.UserID, &c.PromptID, &c.PromptType, &c.Title, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation looks a conversation up by its client identifier and
// returns nil when absent.
func (s *Store) GetConversation(ctx context.Context, convID string) (*Conversation, error) {
	c, err := scanConversation(s.queryRow(ctx, s.db, `
        SELECT `+conversationColumns+`
        FROM conversations c JOIN prompts p ON p.id = c.prompt_id
        WHERE c.conv_id = ?`, convID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// CreateConversation inserts c. A concurrent insert of the same conv_id
// surfaces as a unique violation; see IsUniqueViolation.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	now := utcNow()
	c.CreatedAt, c.UpdatedAt = now, now
	err := s.queryRow(ctx, s.db, `
        INSERT INTO conversations (conv_id, user_id, prompt_id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id`,
		c.ConvID, c.UserID, c.PromptID, c.Title, now, now,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *Store) TouchConversation(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, s.db, "UPDATE conversations SET updated_at = ? WHERE id = ?", utcNow(), id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

type ConversationFilter struct {
	UserID     *int64
	Search     string
	PromptType PromptType
	Page
}

// ListConversations returns one page of conversations, most recently active
// first, with message counts and the latest message, plus the total count.
func (s *Store) ListConversations(ctx context.Context, f ConversationFilter) ([]ConversationSummary, int, error) {
	var where []string
	var args []any
	if f.UserID != nil {
		where = append(where, "c.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Search != "" {
		where = append(where, `LOWER(c.title) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}
	if f.PromptType != "" {
		where = append(where, "p.prompt_type = ?")
		args = append(args, f.PromptType)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	from := " FROM conversations c JOIN prompts p ON p.id = c.prompt_id"

	var total int
	if err := s.queryRow(ctx, s.db, "SELECT COUNT(*)"+from+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.query(ctx, s.db, `
        SELECT `+conversationColumns+`,
            (SELECT COUNT(*) FROM chat_messages m WHERE m.conversation_id = c.id),
            (SELECT m.content FROM chat_messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1)`+
		from+clause+`
        ORDER BY c.updated_at DESC, c.id DESC
        LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	items := []ConversationSummary{}
	for rows.Next() {
		var count int
		var last sql.NullString
		c, err := scanConversation(rows, &count, &last)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		items = append(items, ConversationSummary{Conversation: *c, MessageCount: count, LastMessage: stringPtr(last)})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return items, total, nil
}
