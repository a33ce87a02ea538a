package store

import (
	"context"
	"fmt"
)

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.queryRow(ctx, s.db, `
        SELECT
            (SELECT COUNT(*) FROM users WHERE is_deleted = FALSE),
            (SELECT COUNT(*) FROM users WHERE is_deleted = FALSE AND is_verified = TRUE),
            (SELECT COUNT(*) FROM conversations),
            (SELECT COUNT(*) FROM chat_messages),
            (SELECT COUNT(*) FROM chat_messages WHERE is_out_of_scope = TRUE)`,
	).Scan(&st.Users, &st.VerifiedUsers, &st.Conversations, &st.Messages, &st.OutOfScopeMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &st, nil
}
