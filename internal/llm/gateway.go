// Package llm wraps the configured text-generation provider behind a single
// Gateway with a bounded per-attempt timeout, one retry on timeout, latency
// metrics and tracing spans.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Purpose labels a call site for metrics and logs.
type Purpose string

const (
	PurposeAnswer        Purpose = "answer"
	PurposeClassify      Purpose = "classify"
	PurposeGuardrail     Purpose = "guardrail"
	PurposeDecline       Purpose = "decline"
	PurposeExtract       Purpose = "extract"
	PurposeProfilePrompt Purpose = "profile_prompt"
	PurposeDocument      Purpose = "document"
)

type Request struct {
	Purpose     Purpose
	System      string
	History     []Message
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Completer is what callers depend on; *Gateway implements it.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var (
	ErrEmptyResponse = errors.New("llm returned an empty response")
	ErrTimeout       = errors.New("llm request timed out")
)

var tracer = otel.Tracer("lemonhealth/internal/llm")

type Gateway struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *Metrics
}

func NewGateway(provider Provider, timeout time.Duration, logger *zap.Logger, metrics *Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{provider: provider, timeout: timeout, logger: logger, metrics: metrics}
}

// Complete runs req against the provider. An attempt that exceeds the
// gateway timeout is retried once while ctx is still live.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.provider.Name()),
		attribute.String("llm.purpose", string(req.Purpose)),
		attribute.Int("llm.history_len", len(req.History)),
	)

	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := g.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			break
		}
		g.logger.Warn("llm attempt timed out, retrying",
			zap.String("provider", g.provider.Name()),
			zap.String("purpose", string(req.Purpose)),
			zap.Int("attempt", attempt))
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	g.logger.Warn("llm request failed",
		zap.String("provider", g.provider.Name()),
		zap.String("purpose", string(req.Purpose)),
		zap.Error(lastErr))
	return "", lastErr
}

func (g *Gateway) attempt(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	// The provider runs on its own goroutine so a client that ignores
	// cancellation cannot hold the caller past the timeout.
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		text, err := g.provider.Complete(callCtx, req)
		done <- result{text, err}
	}()

	var text string
	var err error
	select {
	case r := <-done:
		text, err = r.text, r.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	status := "ok"
	switch {
	case err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		status = "timeout"
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, g.timeout, err)
	case err != nil:
		status = "error"
		err = fmt.Errorf("%s completion failed: %w", g.provider.Name(), err)
	case strings.TrimSpace(text) == "":
		status = "empty"
		err = ErrEmptyResponse
	}
	g.metrics.observe(g.provider.Name(), req.Purpose, status, time.Since(start))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Messages flattens req into the role/content list chat-style providers take.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.History)+2)
	if r.System != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.System})
	}
	for _, m := range r.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return append(out, Message{Role: RoleUser, Content: r.Prompt})
}
