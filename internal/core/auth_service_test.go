package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/auth"
	"lemonhealth.app/backend/internal/store"
)

type authFixture struct {
	db        *store.Store
	sender    *fakeSender
	blacklist *memBlacklist
	tokens    *auth.TokenService
	svc       *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestStore(t)
	sender := &fakeSender{}
	bl := newMemBlacklist()
	tokens := auth.NewTokenService("test-secret", time.Hour, 24*time.Hour)
	otp := NewOTPService(db, sender, 5*time.Minute, 100, nil, nil)
	return &authFixture{db: db, sender: sender, blacklist: bl, tokens: tokens,
		svc: NewAuthService(db, tokens, bl, otp, nil)}
}

func (f *authFixture) register(t *testing.T) *store.User {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		FirstName: "Lee", LastName: "Park", MobileNumber: "555 123-4567", CountryCode: "+1",
		Password: "Abcd123!", ConfirmPassword: "Abcd123!",
	})
	require.NoError(t, err)
	return res.User
}

var testPhone = Phone{MobileNumber: "5551234567", CountryCode: "+1"}

func TestNormalizePhone(t *testing.T) {
	p, errs := NormalizePhone(Phone{MobileNumber: "(555) 123-4567", CountryCode: "1"})
	assert.Nil(t, errs)
	assert.Equal(t, Phone{MobileNumber: "5551234567", CountryCode: "+1"}, p)

	_, errs = NormalizePhone(Phone{MobileNumber: "12ab", CountryCode: "+12345"})
	assert.Contains(t, errs, "mobile_number")
	assert.Contains(t, errs, "country_code")
}

func TestRegisterThenLoginBeforeVerification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, RegisterInput{
		FirstName: "Lee", LastName: "Park", MobileNumber: "5551234567", CountryCode: "+1",
		Password: "Abcd123!", ConfirmPassword: "Abcd123!",
	})
	require.NoError(t, err)
	assert.False(t, res.User.IsVerified)
	assert.True(t, res.SMSSent)
	require.Len(t, f.sender.sent, 1)
	first := f.sender.lastCode(t)

	_, err = f.svc.Login(ctx, testPhone, "Abcd123!")
	require.Error(t, err)
	assert.Equal(t, apperr.NotVerified, apperr.KindOf(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, false, ae.Data.(map[string]any)["is_verified"])
	require.Len(t, f.sender.sent, 2, "login resends the code")

	ok, err := f.svc.otp.Verify(ctx, f.svc.userTarget(res.User), store.PurposeSignup, first)
	require.NoError(t, err)
	if first != f.sender.lastCode(t) {
		assert.False(t, ok, "the resend invalidates the first code")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", MobileNumber: "55", CountryCode: "+1",
		Password: "Abcd123!", ConfirmPassword: "Abcd123!"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", MobileNumber: "5551234567", CountryCode: "+1",
		Password: "abcdefgh", ConfirmPassword: "abcdefgh"})
	assert.Equal(t, apperr.WeakPassword, apperr.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", MobileNumber: "5551234567", CountryCode: "+1",
		Password: "Abcd123!", ConfirmPassword: "Abcd123?"})
	assert.Equal(t, apperr.PasswordMismatch, apperr.KindOf(err))

	f.register(t)
	_, err = f.svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", MobileNumber: "5551234567", CountryCode: "+1",
		Password: "Abcd123!", ConfirmPassword: "Abcd123!"})
	assert.Equal(t, apperr.UserExists, apperr.KindOf(err))
}

func TestVerifyThenLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t)

	_, err := f.svc.Verify(ctx, testPhone, "000000")
	if f.sender.lastCode(t) != "000000" {
		assert.Equal(t, apperr.InvalidCode, apperr.KindOf(err))
	}

	res, err := f.svc.Verify(ctx, testPhone, f.sender.lastCode(t))
	require.NoError(t, err)
	assert.True(t, res.User.IsVerified)
	assert.NotEmpty(t, res.AccessToken)

	_, err = f.svc.Verify(ctx, testPhone, f.sender.lastCode(t))
	assert.Equal(t, apperr.AlreadyVerified, apperr.KindOf(err))

	_, err = f.svc.Login(ctx, testPhone, "wrong")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))

	res, err = f.svc.Login(ctx, testPhone, "Abcd123!")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)

	_, err = f.svc.Login(ctx, Phone{MobileNumber: "5559999999", CountryCode: "+1"}, "Abcd123!")
	assert.Equal(t, apperr.UserNotFound, apperr.KindOf(err))
}

func verifiedUser(t *testing.T, f *authFixture) *AuthResult {
	t.Helper()
	f.register(t)
	res, err := f.svc.Verify(context.Background(), testPhone, f.sender.lastCode(t))
	require.NoError(t, err)
	return res
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := verifiedUser(t, f)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.Equal(t, apperr.TokenRevoked, apperr.KindOf(err))

	_, err = f.svc.Refresh(ctx, second.AccessToken)
	assert.Equal(t, apperr.InvalidToken, apperr.KindOf(err), "access tokens cannot refresh")
}

func TestLogoutRevokesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := verifiedUser(t, f)

	claims, user, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)

	require.NoError(t, f.svc.Logout(ctx, claims, res.RefreshToken))

	_, _, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.Equal(t, apperr.TokenRevoked, apperr.KindOf(err))
	_, err = f.svc.Refresh(ctx, res.RefreshToken)
	assert.Equal(t, apperr.TokenRevoked, apperr.KindOf(err))
}

func TestPasswordResetAndChange(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := verifiedUser(t, f)

	_, err := f.svc.ForgotPassword(ctx, testPhone)
	require.NoError(t, err)
	code := f.sender.lastCode(t)
	require.NoError(t, f.svc.ResetPassword(ctx, testPhone, code, "Newpass1!", "Newpass1!"))
	assert.Equal(t, apperr.InvalidCode, apperr.KindOf(f.svc.ResetPassword(ctx, testPhone, code, "Other12!", "Other12!")))

	_, err = f.svc.Login(ctx, testPhone, "Newpass1!")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, res.User.ID, "wrong", "Third123!", "Third123!")
	assert.Equal(t, apperr.IncorrectPassword, apperr.KindOf(err))
	require.NoError(t, f.svc.ChangePassword(ctx, res.User.ID, "Newpass1!", "Third123!", "Third123!"))
	_, err = f.svc.Login(ctx, testPhone, "Third123!")
	require.NoError(t, err)
}

func TestLoginCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	verifiedUser(t, f)

	_, err := f.svc.RequestLoginCode(ctx, testPhone)
	require.NoError(t, err)
	res, err := f.svc.VerifyLoginCode(ctx, testPhone, f.sender.lastCode(t))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	_, err = f.svc.VerifyLoginCode(ctx, testPhone, f.sender.lastCode(t))
	assert.Equal(t, apperr.InvalidCode, apperr.KindOf(err))
}

func TestDeleteMe(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := verifiedUser(t, f)
	claims, _, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMe(ctx, res.User.ID, claims))
	_, _, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.Error(t, err)
	_, err = f.svc.Login(ctx, testPhone, "Abcd123!")
	assert.Equal(t, apperr.UserNotFound, apperr.KindOf(err))
}
