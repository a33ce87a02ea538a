package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedProvider struct {
	calls   atomic.Int32
	respond func(ctx context.Context, call int32, req Request) (string, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req Request) (string, error) {
	return p.respond(ctx, p.calls.Add(1), req)
}

func blockUntilDone(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGatewayReturnsTrimmedText(t *testing.T) {
	p := &scriptedProvider{respond: func(context.Context, int32, Request) (string, error) { return "  hello \n", nil }}
	g := NewGateway(p, time.Second, zaptest.NewLogger(t), nil)

	text, err := g.Complete(context.Background(), Request{Purpose: PurposeAnswer, Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGatewayRetriesOnceAfterTimeout(t *testing.T) {
	p := &scriptedProvider{respond: func(ctx context.Context, call int32, _ Request) (string, error) {
		if call == 1 {
			return blockUntilDone(ctx)
		}
		return "second time lucky", nil
	}}
	reg := prometheus.NewRegistry()
	g := NewGateway(p, 20*time.Millisecond, zaptest.NewLogger(t), NewMetrics(reg))

	text, err := g.Complete(context.Background(), Request{Purpose: PurposeGuardrail, Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", text)
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "lemonhealth_llm_request_duration_seconds"))
}

func TestGatewayGivesUpAfterSecondTimeout(t *testing.T) {
	p := &scriptedProvider{respond: func(ctx context.Context, _ int32, _ Request) (string, error) {
		return blockUntilDone(ctx)
	}}
	g := NewGateway(p, 10*time.Millisecond, zaptest.NewLogger(t), nil)

	_, err := g.Complete(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGatewayDoesNotRetryProviderErrors(t *testing.T) {
	boom := errors.New("rate limited")
	p := &scriptedProvider{respond: func(context.Context, int32, Request) (string, error) { return "", boom }}
	g := NewGateway(p, time.Second, zaptest.NewLogger(t), nil)

	_, err := g.Complete(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGatewayDoesNotRetryWhenCallerCancelled(t *testing.T) {
	p := &scriptedProvider{respond: func(ctx context.Context, _ int32, _ Request) (string, error) {
		return blockUntilDone(ctx)
	}}
	g := NewGateway(p, time.Second, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Complete(ctx, Request{Prompt: "q"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGatewayRejectsBlankOutput(t *testing.T) {
	p := &scriptedProvider{respond: func(context.Context, int32, Request) (string, error) { return "   ", nil }}
	g := NewGateway(p, time.Second, nil, nil)

	_, err := g.Complete(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRequestMessages(t *testing.T) {
	req := Request{
		System: "sys",
		History: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: ""},
			{Role: RoleAssistant, Content: "reply"},
		},
		Prompt: "now",
	}
	msgs := req.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, Message{Role: RoleSystem, Content: "sys"}, msgs[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "now"}, msgs[3])
}

func TestGeminiHistoryRoles(t *testing.T) {
	h := geminiHistory([]Message{
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	require.Len(t, h, 2)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, "model", h[1].Role)
}
