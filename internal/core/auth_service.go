package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/auth"
	"lemonhealth.app/backend/internal/store"
)

var (
	countryCodeRe = regexp.MustCompile(`^\+\d{1,4}$`)
	phoneDigitsRe = regexp.MustCompile(`^\d{5,15}$`)
	phoneSepRe    = regexp.MustCompile(`[\s\-().]`)
)

type RegisterInput struct {
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	MobileNumber    string  `json:"mobile_number"`
	CountryCode     string  `json:"country_code"`
	Email           *string `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirm_password"`
}

type Phone struct {
	MobileNumber string `json:"mobile_number"`
	CountryCode  string `json:"country_code"`
}

// RegisterResult carries the new user and whether the signup code was
// delivered.
type RegisterResult struct {
	User    *store.User `json:"user"`
	SMSSent bool        `json:"sms_sent"`
}

type AuthResult struct {
	*auth.TokenPair
	User *store.User `json:"user"`
}

type AuthService struct {
	store     *store.Store
	tokens    *auth.TokenService
	blacklist auth.Blacklist
	otp       *OTPService
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthService(db *store.Store, tokens *auth.TokenService, blacklist auth.Blacklist,
	otp *OTPService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{store: db, tokens: tokens, blacklist: blacklist, otp: otp, logger: logger, now: time.Now}
}

// NormalizePhone strips separators and validates both parts.
func NormalizePhone(p Phone) (Phone, map[string]string) {
	errs := map[string]string{}
	cc := strings.TrimSpace(p.CountryCode)
	if cc != "" && !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	if !countryCodeRe.MatchString(cc) {
		errs["country_code"] = "must be + followed by 1 to 4 digits"
	}
	num := phoneSepRe.ReplaceAllString(p.MobileNumber, "")
	if !phoneDigitsRe.MatchString(num) {
		errs["mobile_number"] = "must contain 5 to 15 digits"
	}
	if len(errs) > 0 {
		return Phone{}, errs
	}
	return Phone{MobileNumber: num, CountryCode: cc}, nil
}

func validatePhone(p Phone) (Phone, error) {
	norm, errs := NormalizePhone(p)
	if errs != nil {
		return Phone{}, apperr.Invalid(errs)
	}
	return norm, nil
}

func validateNewPassword(password, confirm string) error {
	if !auth.IsStrongPassword(password) {
		return apperr.New(apperr.WeakPassword)
	}
	if password != confirm {
		return apperr.New(apperr.PasswordMismatch)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	phone, errs := NormalizePhone(Phone{MobileNumber: in.MobileNumber, CountryCode: in.CountryCode})
	if errs == nil {
		errs = map[string]string{}
	}
	if strings.TrimSpace(in.FirstName) == "" {
		errs["first_name"] = "is required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		errs["last_name"] = "is required"
	}
	if in.Email != nil && *in.Email != "" && !strings.Contains(*in.Email, "@") {
		errs["email"] = "is not a valid email address"
	}
	if len(errs) > 0 {
		return nil, apperr.Invalid(errs)
	}
	if err := validateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByMobile(ctx, phone.MobileNumber, phone.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, apperr.New(apperr.UserExists)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	var email *string
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		e := strings.TrimSpace(*in.Email)
		email = &e
	}
	user := &store.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		MobileNumber: phone.MobileNumber,
		CountryCode:  phone.CountryCode,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.New(apperr.UserExists)
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))

	sent, err := s.otp.Issue(ctx, OTPTarget{UserID: &user.ID, CountryCode: user.CountryCode, MobileNumber: user.MobileNumber}, store.PurposeSignup)
	if err != nil {
		s.logger.Warn("failed to issue signup code", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return &RegisterResult{User: user, SMSSent: sent}, nil
}

// Login checks credentials. Unverified users get a fresh signup code and
// a NotVerified error carrying the delivery result.
func (s *AuthService) Login(ctx context.Context, p Phone, password string) (*AuthResult, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperr.New(apperr.InvalidCredentials)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.InactiveUser)
	}
	if !user.IsVerified {
		sent, err := s.otp.Issue(ctx, s.userTarget(user), store.PurposeSignup)
		if err != nil && apperr.KindOf(err) != apperr.RateLimited {
			s.logger.Warn("failed to resend signup code", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return nil, apperr.WithData(apperr.NotVerified, map[string]any{
			"user_id":     user.ID,
			"is_verified": false,
			"sms_sent":    sent,
		})
	}
	return s.issue(user)
}

// Verify consumes a signup code and returns tokens for the now verified user.
func (s *AuthService) Verify(ctx context.Context, p Phone, code string) (*AuthResult, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return nil, apperr.New(apperr.AlreadyVerified)
	}
	ok, err := s.otp.Verify(ctx, s.userTarget(user), store.PurposeSignup, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.InvalidCode)
	}
	if err := s.store.MarkUserVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true
	return s.issue(user)
}

func (s *AuthService) ResendVerification(ctx context.Context, p Phone) (bool, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return false, err
	}
	if user.IsVerified {
		return false, apperr.New(apperr.AlreadyVerified)
	}
	return s.otp.Issue(ctx, s.userTarget(user), store.PurposeSignup)
}

func (s *AuthService) ForgotPassword(ctx context.Context, p Phone) (bool, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return false, err
	}
	return s.otp.Issue(ctx, s.userTarget(user), store.PurposePasswordReset)
}

func (s *AuthService) ResetPassword(ctx context.Context, p Phone, code, password, confirm string) error {
	if err := validateNewPassword(password, confirm); err != nil {
		return err
	}
	user, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	ok, err := s.otp.Verify(ctx, s.userTarget(user), store.PurposePasswordReset, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.InvalidCode)
	}
	return s.setPassword(ctx, user.ID, password)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, password, confirm string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(current, user.PasswordHash) {
		return apperr.New(apperr.IncorrectPassword)
	}
	if err := validateNewPassword(password, confirm); err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, password)
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err)
	}
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.InactiveUser)
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Logout revokes the access token and, when given, the refresh token.
func (s *AuthService) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if err := s.revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		// An unusable refresh token cannot be replayed either.
		return nil
	}
	return s.revoke(ctx, claims)
}

// Authenticate resolves an access token to a live, active user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, *store.User, error) {
	claims, err := s.tokens.Parse(accessToken, auth.AccessToken)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InvalidToken, err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InvalidToken, err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, apperr.New(apperr.InvalidToken)
	}
	if !user.IsActive {
		return nil, nil, apperr.New(apperr.InactiveUser)
	}
	return claims, user, nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.UserNotFound)
	}
	return user, nil
}

// DeleteMe soft deletes the user and revokes the token used for the call.
func (s *AuthService) DeleteMe(ctx context.Context, userID int64, access *auth.Claims) error {
	if err := s.store.SoftDeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.UserNotFound)
		}
		return err
	}
	return s.revoke(ctx, access)
}

// RequestLoginCode texts a passwordless login code keyed by phone number.
func (s *AuthService) RequestLoginCode(ctx context.Context, p Phone) (bool, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return false, err
	}
	if !user.IsActive {
		return false, apperr.New(apperr.InactiveUser)
	}
	return s.otp.Issue(ctx, OTPTarget{CountryCode: user.CountryCode, MobileNumber: user.MobileNumber}, store.PurposeLogin)
}

func (s *AuthService) VerifyLoginCode(ctx context.Context, p Phone, code string) (*AuthResult, error) {
	user, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	target := OTPTarget{CountryCode: user.CountryCode, MobileNumber: user.MobileNumber}
	ok, err := s.otp.Verify(ctx, target, store.PurposeLogin, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.InvalidCode)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.InactiveUser)
	}
	if !user.IsVerified {
		// Receiving the code proves control of the number.
		if err := s.store.MarkUserVerified(ctx, user.ID); err != nil {
			return nil, err
		}
		user.IsVerified = true
	}
	return s.issue(user)
}

func (s *AuthService) lookup(ctx context.Context, p Phone) (*store.User, error) {
	phone, err := validatePhone(p)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByMobile(ctx, phone.MobileNumber, phone.CountryCode)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.UserNotFound)
	}
	return user, nil
}

func (s *AuthService) userTarget(u *store.User) OTPTarget {
	return OTPTarget{UserID: &u.ID, CountryCode: u.CountryCode, MobileNumber: u.MobileNumber}
}

func (s *AuthService) issue(user *store.User) (*AuthResult, error) {
	pair, err := s.tokens.Issue(user.ID, user.IsVerified)
	if err != nil {
		return nil, err
	}
	return &AuthResult{TokenPair: pair, User: user}, nil
}

func (s *AuthService) checkRevoked(ctx context.Context, claims *auth.Claims) error {
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if revoked {
		return apperr.New(apperr.TokenRevoked)
	}
	return nil
}

func (s *AuthService) revoke(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, claims.Remaining(s.now())); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
