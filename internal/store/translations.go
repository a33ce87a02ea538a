package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LookupTranslation reads an override for key from the translations table.
// Only en and es columns exist.
func (s *Store) LookupTranslation(ctx context.Context, key, lang string) (string, bool, error) {
	var column string
	switch lang {
	case "en":
		column = "en"
	case "es":
		column = "es"
	default:
		return "", false, nil
	}

	var text string
	err := s.queryRow(ctx, s.db,
		"SELECT "+column+" FROM translations WHERE keyword = ? AND is_deleted = FALSE", key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to lookup translation: %w", err)
	}
	return text, true, nil
}

func (s *Store) UpsertTranslation(ctx context.Context, key, en, es string) error {
	now := utcNow()
	_, err := s.exec(ctx, s.db, `
        INSERT INTO translations (keyword, en, es, is_deleted, created_at, updated_at)
        VALUES (?, ?, ?, FALSE, ?, ?)
        ON CONFLICT (keyword) DO UPDATE SET en = excluded.en, es = excluded.es, is_deleted = FALSE, updated_at = excluded.updated_at`,
		key, en, es, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert translation: %w", err)
	}
	return nil
}
