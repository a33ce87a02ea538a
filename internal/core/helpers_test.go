package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

// fakeLLM answers by purpose and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	handlers map[llm.Purpose]func(llm.Request) (string, error)
	calls    []llm.Request
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{handlers: map[llm.Purpose]func(llm.Request) (string, error){}}
}

func (f *fakeLLM) on(p llm.Purpose, text string) *fakeLLM {
	f.handlers[p] = func(llm.Request) (string, error) { return text, nil }
	return f
}

func (f *fakeLLM) fail(p llm.Purpose, err error) *fakeLLM {
	f.handlers[p] = func(llm.Request) (string, error) { return "", err }
	return f
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	h := f.handlers[req.Purpose]
	f.mu.Unlock()
	if h == nil {
		return "", fmt.Errorf("no scripted reply for %s", req.Purpose)
	}
	return h(req)
}

func (f *fakeLLM) count(p llm.Purpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}

func (f *fakeLLM) last(p llm.Purpose) *llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Purpose == p {
			c := f.calls[i]
			return &c
		}
	}
	return nil
}

var errProvider = errors.New("provider unavailable")

// fakeSender records texts and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

type sentSMS struct{ to, body string }

var smsCodeRe = regexp.MustCompile(`\d{6}`)

func (f *fakeSender) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentSMS{to: to, body: body})
	return f.err
}

func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	code := smsCodeRe.FindString(f.sent[len(f.sent)-1].body)
	require.NotEmpty(t, code)
	return code
}

type memBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: map[string]time.Duration{}}
}

func (b *memBlacklist) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[id] = ttl
	return nil
}

func (b *memBlacklist) IsRevoked(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.revoked[id]
	return ok, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.SeedPrompts(context.Background(), DefaultPrompts)
	require.NoError(t, err)
	return s
}

func createTestUser(t *testing.T, s *store.Store, mobile string) *store.User {
	t.Helper()
	u := &store.User{FirstName: "Sam", LastName: "Rivera", MobileNumber: mobile, CountryCode: "+1",
		PasswordHash: "x", IsActive: true, IsVerified: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func completeProfile(t *testing.T, s *store.Store, userID int64) {
	t.Helper()
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	h, w, g := 175.0, 70.0, "female"
	cm, kg := "cm", "kg"
	_, err := s.PatchProfile(context.Background(), userID, store.ProfilePatch{
		DateOfBirth: &dob, Height: &h, HeightUnit: &cm, Weight: &w, WeightUnit: &kg, Gender: &g,
	})
	require.NoError(t, err)
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}
