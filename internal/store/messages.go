package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const messageColumns = "id, mid, conversation_id, user_id, role, content, is_out_of_scope, created_at"

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var userID sql.NullInt64
	if err := row.Scan(&m.ID, &m.MID, &m.ConversationID, &userID, &m.Role, &m.Content, &m.IsOutOfScope, &m.CreatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		m.UserID = &id
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// CreateMessage assigns the message id and timestamp, stores msg and bumps
// the conversation's activity time.
func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	msg.MID = uuid.NewString()
	msg.CreatedAt = utcNow()

	var userID sql.NullInt64
	if msg.UserID != nil {
		userID = sql.NullInt64{Int64: *msg.UserID, Valid: true}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.queryRow(ctx, tx, `
            INSERT INTO chat_messages (mid, conversation_id, user_id, role, content, is_out_of_scope, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            RETURNING id`,
			msg.MID, msg.ConversationID, userID, msg.Role, msg.Content, msg.IsOutOfScope, msg.CreatedAt,
		).Scan(&msg.ID)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if _, err := s.exec(ctx, tx, "UPDATE conversations SET updated_at = ? WHERE id = ?", msg.CreatedAt, msg.ConversationID); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns the full transcript in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT "+messageColumns+" FROM chat_messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return collectMessages(rows)
}

// RecentMessages returns up to n of the latest messages in chronological
// order, leaving out excludeID.
func (s *Store) RecentMessages(ctx context.Context, conversationID int64, n int, excludeID int64) ([]Message, error) {
	rows, err := s.query(ctx, s.db, `
        SELECT `+messageColumns+`
        FROM chat_messages
        WHERE conversation_id = ? AND id <> ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, conversationID, excludeID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessageOwner pairs a message with the user owning its conversation.
type MessageOwner struct {
	Message
	OwnerID int64
}

// GetMessage returns nil when no message has the mid.
func (s *Store) GetMessage(ctx context.Context, mid string) (*MessageOwner, error) {
	var owner int64
	var userID sql.NullInt64
	var m Message
	err := s.queryRow(ctx, s.db, `
        SELECT m.id, m.mid, m.conversation_id, m.user_id, m.role, m.content, m.is_out_of_scope, m.created_at, c.user_id
        FROM chat_messages m JOIN conversations c ON c.id = m.conversation_id
        WHERE m.mid = ?`, mid,
	).Scan(&m.ID, &m.MID, &m.ConversationID, &userID, &m.Role, &m.Content, &m.IsOutOfScope, &m.CreatedAt, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if userID.Valid {
		id := userID.Int64
		m.UserID = &id
	}
	return &MessageOwner{Message: m, OwnerID: owner}, nil
}

func (s *Store) SetMessageOutOfScope(ctx context.Context, mid string, outOfScope bool) error {
	res, err := s.exec(ctx, s.db, "UPDATE chat_messages SET is_out_of_scope = ? WHERE mid = ?", outOfScope, mid)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type MessageFilter struct {
	OutOfScope *bool
	UserID     *int64
	ConvID     string
	Page
}

// ListMessagesFiltered serves the admin message review screen, newest first.
func (s *Store) ListMessagesFiltered(ctx context.Context, f MessageFilter) ([]Message, int, error) {
	var where []string
	var args []any
	if f.OutOfScope != nil {
		where = append(where, "m.is_out_of_scope = ?")
		args = append(args, *f.OutOfScope)
	}
	if f.UserID != nil {
		where = append(where, "c.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ConvID != "" {
		where = append(where, "c.conv_id = ?")
		args = append(args, f.ConvID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	from := " FROM chat_messages m JOIN conversations c ON c.id = m.conversation_id"

	var total int
	if err := s.queryRow(ctx, s.db, "SELECT COUNT(*)"+from+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	rows, err := s.query(ctx, s.db, `
        SELECT m.id, m.mid, m.conversation_id, m.user_id, m.role, m.content, m.is_out_of_scope, m.created_at`+
		from+clause+" ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?", append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
