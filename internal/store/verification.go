package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserOwnerKey and PhoneOwnerKey build the owner of a verification code:
// a registered user, or a phone number for flows that precede one.
func UserOwnerKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func PhoneOwnerKey(countryCode, mobileNumber string) string {
	return "phone:" + countryCode + mobileNumber
}

// IssueVerificationCode marks every unused code for the same owner and
// purpose as used, then inserts vc, in one transaction.
func (s *Store) IssueVerificationCode(ctx context.Context, vc *VerificationCode) error {
	vc.CreatedAt = utcNow()
	vc.IsUsed = false
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx,
			"UPDATE verification_codes SET is_used = TRUE WHERE owner_key = ? AND purpose = ? AND is_used = FALSE",
			vc.OwnerKey, vc.Purpose); err != nil {
			return fmt.Errorf("failed to invalidate previous codes: %w", err)
		}

		var mobile, country sql.NullString
		if vc.MobileNumber != "" {
			mobile = sql.NullString{String: vc.MobileNumber, Valid: true}
			country = sql.NullString{String: vc.CountryCode, Valid: true}
		}
		var userID sql.NullInt64
		if vc.UserID != nil {
			userID = sql.NullInt64{Int64: *vc.UserID, Valid: true}
		}
		err := s.queryRow(ctx, tx, `
            INSERT INTO verification_codes (user_id, mobile_number, country_code, owner_key, code, purpose, is_used, expires_at, created_at)
            VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)
            RETURNING id`,
			userID, mobile, country, vc.OwnerKey, vc.Code, vc.Purpose, vc.ExpiresAt.UTC(), vc.CreatedAt,
		).Scan(&vc.ID)
		if err != nil {
			return fmt.Errorf("failed to insert verification code: %w", err)
		}
		return nil
	})
}

// ConsumeVerificationCode marks the matching live code as used. It reports
// false when no unused, unexpired code matches.
func (s *Store) ConsumeVerificationCode(ctx context.Context, ownerKey string, purpose Purpose, code string, now time.Time) (bool, error) {
	res, err := s.exec(ctx, s.db, `
        UPDATE verification_codes SET is_used = TRUE
        WHERE owner_key = ? AND purpose = ? AND code = ? AND is_used = FALSE AND expires_at > ?`,
		ownerKey, purpose, code, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// LiveVerificationCodes lists the unused codes for an owner and purpose.
func (s *Store) LiveVerificationCodes(ctx context.Context, ownerKey string, purpose Purpose) ([]VerificationCode, error) {
	rows, err := s.query(ctx, s.db, `
        SELECT id, user_id, owner_key, code, purpose, is_used, expires_at, created_at
        FROM verification_codes WHERE owner_key = ? AND purpose = ? AND is_used = FALSE`,
		ownerKey, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification codes: %w", err)
	}
	defer rows.Close()

	var codes []VerificationCode
	for rows.Next() {
		var vc VerificationCode
		var userID sql.NullInt64
		if err := rows.Scan(&vc.ID, &userID, &vc.OwnerKey, &vc.Code, &vc.Purpose, &vc.IsUsed, &vc.ExpiresAt, &vc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verification code row: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			vc.UserID = &id
		}
		codes = append(codes, vc)
	}
	return codes, rows.Err()
}
