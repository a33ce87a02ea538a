package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const profileColumns = `id, user_id, date_of_birth, height, height_unit, weight, weight_unit, gender,
        profile_picture, created_at, updated_at`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var dob sql.NullTime
	var height, weight sql.NullFloat64
	var gender, picture sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &dob, &height, &p.HeightUnit, &weight, &p.WeightUnit,
		&gender, &picture, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		d := dob.Time
		p.DateOfBirth = &d
	}
	if height.Valid {
		h := height.Float64
		p.Height = &h
	}
	if weight.Valid {
		w := weight.Float64
		p.Weight = &w
	}
	p.Gender = stringPtr(gender)
	p.ProfilePicture = stringPtr(picture)
	return &p, nil
}

// GetProfile returns nil when the user has no profile row.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	p, err := scanProfile(s.queryRow(ctx, s.db, "SELECT "+profileColumns+" FROM profiles WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes every attribute of p, creating the row if needed.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) (*Profile, error) {
	now := utcNow()
	_, err := s.exec(ctx, s.db, `
        INSERT INTO profiles (user_id, date_of_birth, height, height_unit, weight, weight_unit, gender, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET
            date_of_birth = excluded.date_of_birth,
            height = excluded.height,
            height_unit = excluded.height_unit,
            weight = excluded.weight,
            weight_unit = excluded.weight_unit,
            gender = excluded.gender,
            updated_at = excluded.updated_at`,
		p.UserID, nullDate(p.DateOfBirth), nullFloat(p.Height), unitOr(p.HeightUnit, "cm"),
		nullFloat(p.Weight), unitOr(p.WeightUnit, "kg"), nullString(p.Gender), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return s.GetProfile(ctx, p.UserID)
}

// PatchProfile overwrites only the non-nil fields of patch, creating the row
// if needed.
func (s *Store) PatchProfile(ctx context.Context, userID int64, patch ProfilePatch) (*Profile, error) {
	now := utcNow()
	var heightUnit, weightUnit any
	if patch.HeightUnit != nil {
		heightUnit = *patch.HeightUnit
	}
	if patch.WeightUnit != nil {
		weightUnit = *patch.WeightUnit
	}
	_, err := s.exec(ctx, s.db, `
        INSERT INTO profiles (user_id, date_of_birth, height, height_unit, weight, weight_unit, gender, created_at, updated_at)
        VALUES (?, ?, ?, COALESCE(?, 'cm'), ?, COALESCE(?, 'kg'), ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET
            date_of_birth = COALESCE(?, profiles.date_of_birth),
            height = COALESCE(?, profiles.height),
            height_unit = COALESCE(?, profiles.height_unit),
            weight = COALESCE(?, profiles.weight),
            weight_unit = COALESCE(?, profiles.weight_unit),
            gender = COALESCE(?, profiles.gender),
            updated_at = ?`,
		userID, nullDate(patch.DateOfBirth), nullFloat(patch.Height), heightUnit,
		nullFloat(patch.Weight), weightUnit, nullString(patch.Gender), now, now,
		nullDate(patch.DateOfBirth), nullFloat(patch.Height), heightUnit,
		nullFloat(patch.Weight), weightUnit, nullString(patch.Gender), now)
	if err != nil {
		return nil, fmt.Errorf("failed to patch profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) SetProfilePicture(ctx context.Context, userID int64, url string) (*Profile, error) {
	now := utcNow()
	_, err := s.exec(ctx, s.db, `
        INSERT INTO profiles (user_id, profile_picture, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET profile_picture = excluded.profile_picture, updated_at = excluded.updated_at`,
		userID, url, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to set profile picture: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

// DeleteProfile reports whether a row was removed.
func (s *Store) DeleteProfile(ctx context.Context, userID int64) (bool, error) {
	res, err := s.exec(ctx, s.db, "DELETE FROM profiles WHERE user_id = ?", userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete profile: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	y, m, d := t.Date()
	return sql.NullTime{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func unitOr(unit, fallback string) string {
	if unit == "" {
		return fallback
	}
	return unit
}
