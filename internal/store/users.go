package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const userColumns = `id, first_name, last_name, mobile_number, country_code, email, hashed_password,
        is_active, is_verified, is_admin, is_deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var email sql.NullString
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.MobileNumber, &user.CountryCode,
		&email, &user.PasswordHash, &user.IsActive, &user.IsVerified, &user.IsAdmin, &user.IsDeleted,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Email = stringPtr(email)
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	now := utcNow()
	user.CreatedAt, user.UpdatedAt = now, now
	err := s.queryRow(ctx, s.db, `
        INSERT INTO users (first_name, last_name, mobile_number, country_code, email, hashed_password,
            is_active, is_verified, is_admin, is_deleted, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)
        RETURNING id`,
		user.FirstName, user.LastName, user.MobileNumber, user.CountryCode, nullString(user.Email),
		user.PasswordHash, user.IsActive, user.IsVerified, user.IsAdmin, now, now,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID returns nil when no live user has the id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.queryRow(ctx, s.db,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND is_deleted = FALSE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // User not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// GetUserByMobile returns nil when no live user owns the number.
func (s *Store) GetUserByMobile(ctx context.Context, mobileNumber, countryCode string) (*User, error) {
	user, err := scanUser(s.queryRow(ctx, s.db,
		"SELECT "+userColumns+" FROM users WHERE mobile_number = ? AND country_code = ? AND is_deleted = FALSE",
		mobileNumber, countryCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *Store) MarkUserVerified(ctx context.Context, id int64) error {
	return s.updateUser(ctx, "UPDATE users SET is_verified = TRUE, updated_at = ? WHERE id = ?", utcNow(), id)
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateUser(ctx, "UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?", passwordHash, utcNow(), id)
}

// SoftDeleteUser hides the user and frees the mobile number for reuse.
// Conversations and messages are kept.
func (s *Store) SoftDeleteUser(ctx context.Context, id int64) error {
	return s.updateUser(ctx,
		"UPDATE users SET is_deleted = TRUE, is_active = FALSE, updated_at = ? WHERE id = ? AND is_deleted = FALSE",
		utcNow(), id)
}

func (s *Store) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type UserFlags struct {
	IsActive   *bool
	IsAdmin    *bool
	IsVerified *bool
}

func (s *Store) UpdateUserFlags(ctx context.Context, id int64, flags UserFlags) (*User, error) {
	var sets []string
	var args []any
	if flags.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *flags.IsActive)
	}
	if flags.IsAdmin != nil {
		sets = append(sets, "is_admin = ?")
		args = append(args, *flags.IsAdmin)
	}
	if flags.IsVerified != nil {
		sets = append(sets, "is_verified = ?")
		args = append(args, *flags.IsVerified)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, utcNow(), id)
		query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ? AND is_deleted = FALSE"
		if err := s.updateUser(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

type UserFilter struct {
	Search     string
	IsVerified *bool
	IsActive   *bool
	Page
}

// ListUsers returns one page of live users and the total match count.
func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]User, int, error) {
	where := []string{"is_deleted = FALSE"}
	var args []any
	if f.Search != "" {
		where = append(where, `(LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR mobile_number LIKE ? ESCAPE '\')`)
		p := likePattern(f.Search)
		args = append(args, p, p, p)
	}
	if f.IsVerified != nil {
		where = append(where, "is_verified = ?")
		args = append(args, *f.IsVerified)
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.IsActive)
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.queryRow(ctx, s.db, "SELECT COUNT(*) FROM users"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := s.query(ctx, s.db,
		"SELECT "+userColumns+" FROM users"+clause+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}
