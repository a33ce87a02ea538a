package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/store"
)

func newTestOTP(t *testing.T, db *store.Store, sender *fakeSender, perMinute int) *OTPService {
	t.Helper()
	return NewOTPService(db, sender, 5*time.Minute, perMinute, nil, nil)
}

func TestOTPIssueAndVerify(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5551110001")
	sender := &fakeSender{}
	otp := newTestOTP(t, db, sender, 10)
	target := OTPTarget{UserID: &user.ID, CountryCode: "+1", MobileNumber: "5551110001"}
	ctx := context.Background()

	sent, err := otp.Issue(ctx, target, store.PurposeSignup)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+15551110001", sender.sent[0].to)
	code := sender.lastCode(t)
	assert.Equal(t, "Your Lemon Health verification code is: "+code+". Valid for 5 minutes.", sender.sent[0].body)

	ok, err := otp.Verify(ctx, target, store.PurposePasswordReset, code)
	require.NoError(t, err)
	assert.False(t, ok, "purpose must match")

	ok, err = otp.Verify(ctx, target, store.PurposeSignup, code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = otp.Verify(ctx, target, store.PurposeSignup, code)
	require.NoError(t, err)
	assert.False(t, ok, "a used code never verifies again")
}

func TestOTPReissueInvalidatesPrevious(t *testing.T) {
	db := newTestStore(t)
	sender := &fakeSender{}
	otp := newTestOTP(t, db, sender, 10)
	codes := []string{"111111", "222222"}
	otp.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	target := OTPTarget{CountryCode: "+44", MobileNumber: "7700900123"}
	ctx := context.Background()

	_, err := otp.Issue(ctx, target, store.PurposeLogin)
	require.NoError(t, err)
	_, err = otp.Issue(ctx, target, store.PurposeLogin)
	require.NoError(t, err)

	live, err := db.LiveVerificationCodes(ctx, target.ownerKey(), store.PurposeLogin)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "222222", live[0].Code)

	ok, err := otp.Verify(ctx, target, store.PurposeLogin, "111111")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = otp.Verify(ctx, target, store.PurposeLogin, "222222")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOTPExpiredCodeFails(t *testing.T) {
	db := newTestStore(t)
	sender := &fakeSender{}
	otp := newTestOTP(t, db, sender, 10)
	start := time.Now()
	otp.now = func() time.Time { return start }
	target := OTPTarget{CountryCode: "+1", MobileNumber: "5551110002"}
	ctx := context.Background()

	_, err := otp.Issue(ctx, target, store.PurposeLogin)
	require.NoError(t, err)
	code := sender.lastCode(t)

	otp.now = func() time.Time { return start.Add(6 * time.Minute) }
	ok, err := otp.Verify(ctx, target, store.PurposeLogin, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPSMSFailureIsSoft(t *testing.T) {
	db := newTestStore(t)
	sender := &fakeSender{err: errors.New("twilio down")}
	otp := newTestOTP(t, db, sender, 10)
	target := OTPTarget{CountryCode: "+1", MobileNumber: "5551110003"}
	ctx := context.Background()

	sent, err := otp.Issue(ctx, target, store.PurposeLogin)
	require.NoError(t, err)
	assert.False(t, sent)

	ok, err := otp.Verify(ctx, target, store.PurposeLogin, sender.lastCode(t))
	require.NoError(t, err)
	assert.True(t, ok, "the stored code stays usable")
}

func TestOTPRateLimited(t *testing.T) {
	db := newTestStore(t)
	otp := newTestOTP(t, db, &fakeSender{}, 2)
	target := OTPTarget{CountryCode: "+1", MobileNumber: "5551110004"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := otp.Issue(ctx, target, store.PurposeLogin)
		require.NoError(t, err)
	}
	_, err := otp.Issue(ctx, target, store.PurposeLogin)
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))

	other := OTPTarget{CountryCode: "+1", MobileNumber: "5551110005"}
	_, err = otp.Issue(ctx, other, store.PurposeLogin)
	assert.NoError(t, err)
}

func TestOTPRejectsMalformedCode(t *testing.T) {
	db := newTestStore(t)
	otp := newTestOTP(t, db, &fakeSender{}, 10)
	ok, err := otp.Verify(context.Background(), OTPTarget{CountryCode: "+1", MobileNumber: "1"}, store.PurposeLogin, "12")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPIdleLimitersAreEvicted(t *testing.T) {
	db := newTestStore(t)
	otp := newTestOTP(t, db, &fakeSender{}, 1)
	start := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	otp.now = func() time.Time { return start }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		target := OTPTarget{CountryCode: "+1", MobileNumber: fmt.Sprintf("555333000%d", i)}
		_, err := otp.Issue(ctx, target, store.PurposeLogin)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, otp.limiterCount())

	otp.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err := otp.Issue(ctx, OTPTarget{CountryCode: "+1", MobileNumber: "5553330000"}, store.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 1, otp.limiterCount())

	_, err = otp.Issue(ctx, OTPTarget{CountryCode: "+1", MobileNumber: "5553330000"}, store.PurposeLogin)
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}
