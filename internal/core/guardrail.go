package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

// guardrailHistory is how many recent messages the classifier sees.
const guardrailHistory = 4

// Guardrail keeps answers inside the assistant's topic catalog.
type Guardrail struct {
	llm     llm.Completer
	logger  *zap.Logger
	metrics *Metrics
}

func NewGuardrail(completer llm.Completer, logger *zap.Logger, metrics *Metrics) *Guardrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guardrail{llm: completer, logger: logger, metrics: metrics}
}

// IsInScope allows the message only when the classifier answers exactly
// ALLOWED; blank output counts as a denial. A failed call is allowed.
func (g *Guardrail) IsInScope(ctx context.Context, message string, history []store.Message, topic store.PromptType) bool {
	out, err := g.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeGuardrail,
		System:      fmt.Sprintf(guardrailClassifierPrompt, topic),
		History:     toLLMHistory(tail(history, guardrailHistory)),
		Prompt:      message,
		Temperature: 0,
		MaxTokens:   5,
	})
	if errors.Is(err, llm.ErrEmptyResponse) {
		out, err = "", nil
	}
	if err != nil {
		g.logger.Warn("guardrail classification failed, allowing message", zap.Error(err))
		g.metrics.guardrailDecision("fail_open")
		return true
	}
	allowed := strings.ToUpper(strings.TrimSpace(out)) == "ALLOWED"
	if allowed {
		g.metrics.guardrailDecision("allowed")
	} else {
		g.metrics.guardrailDecision("denied")
	}
	return allowed
}

// Decline writes the reply for a denied message.
func (g *Guardrail) Decline(ctx context.Context, message string) string {
	out, err := g.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeDecline,
		Prompt:      fmt.Sprintf(declinePrompt, message),
		Temperature: 0.2,
		MaxTokens:   150,
	})
	if err != nil {
		g.logger.Warn("decline generation failed, using fallback", zap.Error(err))
		return declineFallback
	}
	return out
}

func tail(messages []store.Message, n int) []store.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// toLLMHistory maps stored messages to gateway history, leaving out
// declined exchanges.
func toLLMHistory(messages []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.IsOutOfScope {
			continue
		}
		role := llm.RoleUser
		switch m.Role {
		case store.RoleAssistant:
			role = llm.RoleAssistant
		case store.RoleSystem:
			continue
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
