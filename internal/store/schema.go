package store

import (
	"context"
	"fmt"
	"strings"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id {{pk}},
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        mobile_number TEXT NOT NULL,
        country_code TEXT NOT NULL,
        email TEXT,
        hashed_password TEXT NOT NULL,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        is_verified BOOLEAN NOT NULL DEFAULT FALSE,
        is_admin BOOLEAN NOT NULL DEFAULT FALSE,
        is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_mobile ON users (country_code, mobile_number) WHERE is_deleted = FALSE`,

	`CREATE TABLE IF NOT EXISTS profiles (
        id {{pk}},
        user_id {{int}} NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE,
        date_of_birth DATE,
        height {{float}},
        height_unit TEXT NOT NULL DEFAULT 'cm',
        weight {{float}},
        weight_unit TEXT NOT NULL DEFAULT 'kg',
        gender TEXT,
        profile_picture TEXT,
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,

	`CREATE TABLE IF NOT EXISTS verification_codes (
        id {{pk}},
        user_id {{int}} REFERENCES users (id) ON DELETE CASCADE,
        mobile_number TEXT,
        country_code TEXT,
        owner_key TEXT NOT NULL,
        code TEXT NOT NULL,
        purpose TEXT NOT NULL,
        is_used BOOLEAN NOT NULL DEFAULT FALSE,
        expires_at {{ts}} NOT NULL,
        created_at {{ts}} NOT NULL
    )`,
	// At most one live code per owner and purpose.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_verification_live ON verification_codes (owner_key, purpose) WHERE is_used = FALSE`,

	`CREATE TABLE IF NOT EXISTS prompts (
        id {{pk}},
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        prompt_type TEXT NOT NULL UNIQUE,
        system_prompt TEXT NOT NULL,
        icon_path TEXT NOT NULL DEFAULT '',
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,

	`CREATE TABLE IF NOT EXISTS conversations (
        id {{pk}},
        conv_id TEXT NOT NULL UNIQUE,
        user_id {{int}} NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        prompt_id {{int}} NOT NULL REFERENCES prompts (id),
        title TEXT NOT NULL DEFAULT '',
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS ix_conversations_user ON conversations (user_id, updated_at)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
        id {{pk}},
        mid TEXT NOT NULL UNIQUE,
        conversation_id {{int}} NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
        user_id {{int}} REFERENCES users (id) ON DELETE CASCADE,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        is_out_of_scope BOOLEAN NOT NULL DEFAULT FALSE,
        created_at {{ts}} NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS ix_chat_messages_conversation ON chat_messages (conversation_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS documents (
        id {{pk}},
        user_id {{int}} NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        original_filename TEXT NOT NULL,
        file_url TEXT NOT NULL,
        content_type TEXT NOT NULL,
        size_bytes {{int}} NOT NULL,
        created_at {{ts}} NOT NULL
    )`,

	`CREATE TABLE IF NOT EXISTS document_analyses (
        id {{pk}},
        document_id {{int}} NOT NULL UNIQUE REFERENCES documents (id) ON DELETE CASCADE,
        status TEXT NOT NULL,
        extracted_text TEXT NOT NULL DEFAULT '',
        tags TEXT NOT NULL DEFAULT '[]',
        generated_filename TEXT NOT NULL DEFAULT '',
        error_message TEXT NOT NULL DEFAULT '',
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,

	`CREATE TABLE IF NOT EXISTS translations (
        id {{pk}},
        keyword TEXT NOT NULL UNIQUE,
        en TEXT NOT NULL,
        es TEXT NOT NULL,
        is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
        created_at {{ts}} NOT NULL,
        updated_at {{ts}} NOT NULL
    )`,
}

func (s *Store) schemaReplacer() *strings.Replacer {
	if s.dialect == DialectPostgres {
		return strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{int}}", "BIGINT",
			"{{float}}", "DOUBLE PRECISION",
			"{{ts}}", "TIMESTAMPTZ",
		)
	}
	return strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{int}}", "INTEGER",
		"{{float}}", "REAL",
		"{{ts}}", "DATETIME",
	)
}

func (s *Store) initSchema(ctx context.Context) error {
	r := s.schemaReplacer()
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to apply schema statement %.60q: %w", strings.TrimSpace(stmt), err)
		}
	}
	return nil
}
