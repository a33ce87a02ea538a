package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
	"lemonhealth.app/backend/internal/utils"
)

const (
	titleLength   = 60
	previewLength = 100
)

type ChatRequest struct {
	ConvID    string  `json:"conv_id"`
	PromptID  *string `json:"prompt_id"`
	UserQuery string  `json:"user_query"`
	Streamed  bool    `json:"streamed"`
}

// ChatResult is the assistant's reply to one chat request. MessageKey
// names the envelope message for the outcome.
type ChatResult struct {
	ConvID         string           `json:"conv_id"`
	MID            string           `json:"mid"`
	PromptType     store.PromptType `json:"prompt_type"`
	Response       string           `json:"response"`
	IsOutOfScope   bool             `json:"is_out_of_scope"`
	ProfileUpdated bool             `json:"profile_updated"`
	MissingFields  []ProfileField   `json:"missing_fields,omitempty"`
	MessageKey     string           `json:"-"`
}

type ChatHistory struct {
	Conversations []store.ConversationSummary `json:"conversations"`
	Pagination    Pagination                  `json:"pagination"`
}

type ConversationDetail struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

type HistoryQuery struct {
	Page       int
	PerPage    int
	Search     string
	PromptType store.PromptType
}

type ChatService struct {
	store        *store.Store
	completion   *ProfileCompletion
	guardrail    *Guardrail
	classifier   Classifier
	llm          llm.Completer
	logger       *zap.Logger
	historyLimit int
	locks        *keyedMutex
	now          func() time.Time
}

func NewChatService(db *store.Store, completion *ProfileCompletion, guardrail *Guardrail, classifier Classifier,
	completer llm.Completer, historyLimit int, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ChatService{
		store:        db,
		completion:   completion,
		guardrail:    guardrail,
		classifier:   classifier,
		llm:          completer,
		logger:       logger,
		historyLimit: historyLimit,
		locks:        newKeyedMutex(),
		now:          time.Now,
	}
}

// HandleChat runs one chat turn. Requests on the same conversation are
// handled one at a time.
func (s *ChatService) HandleChat(ctx context.Context, userID int64, req ChatRequest) (*ChatResult, error) {
	query := strings.TrimSpace(req.UserQuery)
	if query == "" {
		return nil, apperr.Invalid(map[string]string{"user_query": "must not be empty"})
	}
	if !utils.IsValidUUID(req.ConvID) {
		return nil, apperr.New(apperr.InvalidConversationID)
	}
	topic := store.PromptDefault
	if req.PromptID != nil && *req.PromptID != "" {
		topic = store.PromptType(strings.ToLower(*req.PromptID))
		if !topic.Valid() {
			return nil, apperr.Invalid(map[string]string{"prompt_id": "unknown prompt type"})
		}
	}

	unlock, err := s.locks.Lock(ctx, req.ConvID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire conversation lock: %w", err)
	}
	defer unlock()

	conv, prompt, err := s.loadOrCreate(ctx, userID, req.ConvID, topic, query)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("conv_id", conv.ConvID), zap.Int64("user_id", userID))

	userMsg := &store.Message{ConversationID: conv.ID, UserID: &userID, Role: store.RoleUser, Content: query}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	history, err := s.store.RecentMessages(ctx, conv.ID, s.historyLimit, userMsg.ID)
	if err != nil {
		return nil, err
	}

	result := &ChatResult{ConvID: conv.ConvID, PromptType: conv.PromptType}
	effective := query
	var prefix, resumedMID string

	switch o := s.completion.Evaluate(ctx, userID, query, history, conv.PromptType).(type) {
	case NeedsMoreInfo:
		result.MissingFields = o.Missing
		result.MessageKey = "profile_completion_required"
		return s.reply(ctx, conv, result, o.Prompt, false)
	case ProfileUpdated:
		confirm := &store.Message{ConversationID: conv.ID, Role: store.RoleAssistant, Content: o.Confirmation}
		if err := s.store.CreateMessage(ctx, confirm); err != nil {
			return nil, fmt.Errorf("failed to store confirmation: %w", err)
		}
		result.ProfileUpdated = true
		if o.ResumedQuery == nil {
			result.MID = confirm.MID
			result.Response = o.Confirmation
			result.MessageKey = "profile_updated"
			return result, nil
		}
		logger.Debug("resuming query after profile update")
		effective = *o.ResumedQuery
		resumedMID = o.ResumedMID
		prefix = o.Confirmation + "\n\n"
		history = append(history, *userMsg, *confirm)
	case Proceed:
		effective = o.Query
	}

	if !s.guardrail.IsInScope(ctx, effective, history, conv.PromptType) {
		logger.Info("query declined by guardrail")
		flagged := userMsg.MID
		if resumedMID != "" {
			flagged = resumedMID
		}
		if err := s.store.SetMessageOutOfScope(ctx, flagged, true); err != nil {
			logger.Warn("failed to flag user message", zap.Error(err))
		}
		result.IsOutOfScope = true
		result.MessageKey = "out_of_scope_query"
		return s.reply(ctx, conv, result, s.guardrail.Decline(ctx, effective), true)
	}

	answer := s.answer(ctx, userID, prompt, effective, history)
	result.MessageKey = "query_processed"
	res, err := s.reply(ctx, conv, result, answer, false)
	if err != nil {
		return nil, err
	}
	res.Response = prefix + res.Response
	return res, nil
}

// loadOrCreate fetches the conversation, creating it on the first message.
// A new default-topic conversation must open with a nutrition or exercise
// question.
func (s *ChatService) loadOrCreate(ctx context.Context, userID int64, convID string,
	topic store.PromptType, query string) (*store.Conversation, *store.Prompt, error) {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	if conv != nil {
		if conv.UserID != userID {
			return nil, nil, apperr.New(apperr.ConversationNotFound)
		}
		prompt, err := s.prompt(ctx, conv.PromptType)
		if err != nil {
			return nil, nil, err
		}
		return conv, prompt, nil
	}

	prompt, err := s.prompt(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	if topic == store.PromptDefault {
		v, err := s.classifier.Classify(ctx, CheckOpeningTopic, query)
		if err != nil {
			s.logger.Warn("opening topic classification failed", zap.Error(err))
		}
		if v != Yes {
			return nil, nil, apperr.New(apperr.OffTopicOpening)
		}
	}

	conv = &store.Conversation{
		ConvID:     convID,
		UserID:     userID,
		PromptID:   prompt.ID,
		PromptType: prompt.PromptType,
		Title:      utils.Truncate(query, titleLength),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if !store.IsUniqueViolation(err) {
			return nil, nil, err
		}
		// Created concurrently by another process.
		existing, err := s.store.GetConversation(ctx, convID)
		if err != nil {
			return nil, nil, err
		}
		if existing == nil || existing.UserID != userID {
			return nil, nil, apperr.New(apperr.ConversationNotFound)
		}
		return existing, prompt, nil
	}
	return conv, prompt, nil
}

func (s *ChatService) prompt(ctx context.Context, t store.PromptType) (*store.Prompt, error) {
	p, err := s.store.GetPromptByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.PromptNotFound)
	}
	return p, nil
}

// answer calls the LLM with the topic prompt, guardrail text and profile
// context. Failures turn into an apology.
func (s *ChatService) answer(ctx context.Context, userID int64, prompt *store.Prompt, query string, history []store.Message) string {
	system := prompt.SystemPrompt + "\n\n" + guardrailSystemText
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load profile for context", zap.Int64("user_id", userID), zap.Error(err))
	}
	if pc := ProfileContext(profile, s.now()); pc != "" {
		system += "\n\nUser Profile Context: " + pc
	}
	out, err := s.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeAnswer,
		System:      system,
		History:     toLLMHistory(history),
		Prompt:      query,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		s.logger.Warn("answer generation failed", zap.Int64("user_id", userID), zap.Error(err))
		return answerFallback
	}
	return out
}

func (s *ChatService) reply(ctx context.Context, conv *store.Conversation, result *ChatResult,
	content string, outOfScope bool) (*ChatResult, error) {
	msg := &store.Message{ConversationID: conv.ID, Role: store.RoleAssistant, Content: content, IsOutOfScope: outOfScope}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	result.MID = msg.MID
	result.Response = content
	return result, nil
}

func (s *ChatService) Prompts(ctx context.Context) ([]store.Prompt, error) {
	return s.store.ListPrompts(ctx)
}

// History lists the user's conversations, most recently active first.
func (s *ChatService) History(ctx context.Context, userID int64, q HistoryQuery) (*ChatHistory, error) {
	if q.PromptType != "" && !q.PromptType.Valid() {
		return nil, apperr.Invalid(map[string]string{"prompt_type": "unknown prompt type"})
	}
	page, perPage, p := PageRequest(q.Page, q.PerPage)
	items, total, err := s.store.ListConversations(ctx, store.ConversationFilter{
		UserID:     &userID,
		Search:     strings.TrimSpace(q.Search),
		PromptType: q.PromptType,
		Page:       p,
	})
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].LastMessage != nil {
			preview := utils.Preview(*items[i].LastMessage, previewLength)
			items[i].LastMessage = &preview
		}
	}
	return &ChatHistory{Conversations: items, Pagination: buildPagination(page, perPage, total)}, nil
}

// Conversation returns one of the user's conversations with its full
// transcript.
func (s *ChatService) Conversation(ctx context.Context, userID int64, convID string) (*ConversationDetail, error) {
	if !utils.IsValidUUID(convID) {
		return nil, apperr.New(apperr.InvalidConversationID)
	}
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.UserID != userID {
		return nil, apperr.New(apperr.ConversationNotFound)
	}
	messages, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: conv, Messages: messages}, nil
}

// SetOutOfScope flags or unflags a message. Only the conversation owner or
// an administrator may change it.
func (s *ChatService) SetOutOfScope(ctx context.Context, user *store.User, mid string, outOfScope bool) (*store.Message, error) {
	m, err := s.store.GetMessage(ctx, mid)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.New(apperr.MessageNotFound)
	}
	if m.OwnerID != user.ID && !user.IsAdmin {
		return nil, apperr.New(apperr.Forbidden)
	}
	if err := s.store.SetMessageOutOfScope(ctx, mid, outOfScope); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.MessageNotFound)
		}
		return nil, err
	}
	msg := m.Message
	msg.IsOutOfScope = outOfScope
	return &msg, nil
}
