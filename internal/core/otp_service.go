package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/sms"
	"lemonhealth.app/backend/internal/store"
)

const (
	codeDigits = 6
	// A limiter idle this long has refilled and can be dropped.
	limiterIdle = time.Minute
)

// OTPTarget identifies who a code is for. UserID is nil for flows keyed by
// phone number alone.
type OTPTarget struct {
	UserID       *int64
	CountryCode  string
	MobileNumber string
}

func (t OTPTarget) ownerKey() string {
	if t.UserID != nil {
		return store.UserOwnerKey(*t.UserID)
	}
	return store.PhoneOwnerKey(t.CountryCode, t.MobileNumber)
}

func (t OTPTarget) phone() string {
	return t.CountryCode + t.MobileNumber
}

type OTPService struct {
	store   *store.Store
	sender  sms.Sender
	ttl     time.Duration
	perMin  int
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newCode func() (string, error)

	mu        sync.Mutex
	limiters  map[string]*recipientLimiter
	lastSweep time.Time
}

type recipientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewOTPService(db *store.Store, sender sms.Sender, ttl time.Duration, perMinute int,
	logger *zap.Logger, metrics *Metrics) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if perMinute <= 0 {
		perMinute = 3
	}
	return &OTPService{
		store:    db,
		sender:   sender,
		ttl:      ttl,
		perMin:   perMinute,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		newCode:  randomCode,
		limiters: make(map[string]*recipientLimiter),
	}
}

// Issue replaces any live code for the target and purpose with a new one
// and texts it. The returned bool reports SMS delivery; a failed delivery
// still leaves the code valid.
func (s *OTPService) Issue(ctx context.Context, target OTPTarget, purpose store.Purpose) (bool, error) {
	if !s.allow(target.phone()) {
		return false, apperr.New(apperr.RateLimited)
	}

	code, err := s.newCode()
	if err != nil {
		return false, fmt.Errorf("failed to generate verification code: %w", err)
	}
	vc := &store.VerificationCode{
		UserID:       target.UserID,
		MobileNumber: target.MobileNumber,
		CountryCode:  target.CountryCode,
		OwnerKey:     target.ownerKey(),
		Code:         code,
		Purpose:      purpose,
		ExpiresAt:    s.now().Add(s.ttl),
	}
	err = s.store.IssueVerificationCode(ctx, vc)
	if err != nil && store.IsUniqueViolation(err) {
		// A concurrent issue for the same owner won; replace its code.
		err = s.store.IssueVerificationCode(ctx, vc)
	}
	if err != nil {
		return false, fmt.Errorf("failed to issue verification code: %w", err)
	}

	body := fmt.Sprintf("Your Lemon Health verification code is: %s. Valid for %d minutes.", code, int(s.ttl.Minutes()))
	delivered := true
	if err := s.sender.Send(ctx, target.phone(), body); err != nil {
		s.logger.Warn("failed to send verification sms",
			zap.String("purpose", string(purpose)),
			zap.String("owner", vc.OwnerKey),
			zap.Error(err))
		delivered = false
	}
	s.metrics.codeIssued(string(purpose), delivered)
	return delivered, nil
}

// Verify consumes code if it is the live, unexpired code for the target.
// Used or expired codes never verify.
func (s *OTPService) Verify(ctx context.Context, target OTPTarget, purpose store.Purpose, code string) (bool, error) {
	if len(code) != codeDigits {
		return false, nil
	}
	ok, err := s.store.ConsumeVerificationCode(ctx, target.ownerKey(), purpose, code, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to verify code: %w", err)
	}
	return ok, nil
}

func (s *OTPService) allow(recipient string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) >= limiterIdle {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) >= limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	l, ok := s.limiters[recipient]
	if !ok {
		l = &recipientLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)}
		s.limiters[recipient] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (s *OTPService) limiterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
