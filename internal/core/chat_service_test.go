package core

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

func newTestChat(t *testing.T, db *store.Store, fake *fakeLLM) *ChatService {
	t.Helper()
	classifier := NewDefaultClassifier(fake, nil)
	completion := NewProfileCompletion(db, classifier, newTestExtractor(fake), fake, nil, nil)
	svc := NewChatService(db, completion, NewGuardrail(fake, nil, nil), classifier, fake, 20, nil)
	svc.now = fixedNow
	return svc
}

func topicPtr(t store.PromptType) *string {
	s := string(t)
	return &s
}

func TestChatAnswersInScopeQuestion(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220001")
	completeProfile(t, db, user.ID)
	fake := newFakeLLM().
		on(llm.PurposeGuardrail, "ALLOWED").
		on(llm.PurposeAnswer, "Aim for 1.6 g of protein per kg.")
	svc := newTestChat(t, db, fake)
	convID := uuid.NewString()

	res, err := svc.HandleChat(context.Background(), user.ID, ChatRequest{
		ConvID: convID, PromptID: topicPtr(store.PromptNutrition), UserQuery: "  How much protein should I eat?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Aim for 1.6 g of protein per kg.", res.Response)
	assert.Equal(t, "query_processed", res.MessageKey)
	assert.Equal(t, convID, res.ConvID)
	assert.False(t, res.IsOutOfScope)

	req := fake.last(llm.PurposeAnswer)
	require.NotNil(t, req)
	assert.True(t, strings.HasPrefix(req.System, "You are Lemon, a nutrition expert assistant."))
	assert.Contains(t, req.System, "User Profile Context: User Profile: Age: 36 years old, Gender: female, Height: 175cm, Weight: 70kg")
	assert.Equal(t, "How much protein should I eat?", req.Prompt)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)

	detail, err := svc.Conversation(context.Background(), user.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, convID, detail.ConvID)
	assert.Equal(t, "How much protein should I eat?", detail.Title)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, store.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, res.MID, detail.Messages[1].MID)
}

// Scenario C: a complete profile asking an off-topic question on the
// default topic gets the decline, stored as out of scope.
func TestChatDeclinesOutOfScopeQuestion(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220002")
	completeProfile(t, db, user.ID)
	fake := newFakeLLM().
		on(llm.PurposeGuardrail, "ALLOWED").
		on(llm.PurposeAnswer, "Eat vegetables.").
		on(llm.PurposeDecline, "Sorry, I can only help with health topics.")
	svc := newTestChat(t, db, fake)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, UserQuery: "What should I eat for dinner?"})
	require.NoError(t, err)

	fake.on(llm.PurposeGuardrail, "DENIED")
	res, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, UserQuery: "who won the football world cup?"})
	require.NoError(t, err)
	assert.True(t, res.IsOutOfScope)
	assert.Equal(t, "out_of_scope_query", res.MessageKey)
	assert.Equal(t, "Sorry, I can only help with health topics.", res.Response)
	assert.Equal(t, 1, fake.count(llm.PurposeAnswer), "the denied query never reaches the answer call")

	detail, err := svc.Conversation(ctx, user.ID, convID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 4)
	assert.True(t, detail.Messages[2].IsOutOfScope)
	assert.True(t, detail.Messages[3].IsOutOfScope)
	assert.Equal(t, store.RoleAssistant, detail.Messages[3].Role)
}

// Scenario D: an incomplete profile asking for a plan gets the profile
// request and no answer call.
func TestChatAsksForMissingProfile(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220003")
	fake := newFakeLLM().on(llm.PurposeProfilePrompt, "Please share your age, height, weight and gender.")
	svc := newTestChat(t, db, fake)

	res, err := svc.HandleChat(context.Background(), user.ID, ChatRequest{
		ConvID: uuid.NewString(), PromptID: topicPtr(store.PromptNutrition), UserQuery: "build me a nutrition plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "profile_completion_required", res.MessageKey)
	assert.Equal(t, []ProfileField{FieldDateOfBirth, FieldHeight, FieldWeight, FieldGender}, res.MissingFields)
	assert.Equal(t, "Please share your age, height, weight and gender.", res.Response)
	assert.Zero(t, fake.count(llm.PurposeAnswer))
	assert.Zero(t, fake.count(llm.PurposeGuardrail))
}

// Scenario B followed by a resumed question.
func TestChatProfileUpdateResumesQuestion(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220004")
	fake := newFakeLLM().
		on(llm.PurposeProfilePrompt, "I need your age, height, weight and gender first.").
		on(llm.PurposeClassify, "YES").
		fail(llm.PurposeExtract, errProvider).
		on(llm.PurposeGuardrail, "ALLOWED").
		on(llm.PurposeAnswer, "Here is your plan.")
	svc := newTestChat(t, db, fake)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, PromptID: topicPtr(store.PromptNutrition), UserQuery: "build me a nutrition plan"})
	require.NoError(t, err)

	res, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, UserQuery: "I am 28, male, 180cm, 75kg"})
	require.NoError(t, err)
	assert.True(t, res.ProfileUpdated)
	assert.Equal(t, "query_processed", res.MessageKey)
	assert.True(t, strings.HasPrefix(res.Response, "I've updated your profile"))
	assert.True(t, strings.HasSuffix(res.Response, "Here is your plan."))
	assert.Equal(t, "build me a nutrition plan", fake.last(llm.PurposeAnswer).Prompt)
}

func TestChatDeniedResumedQuestionIsFlagged(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220014")
	fake := newFakeLLM().
		on(llm.PurposeProfilePrompt, "I need your age, height, weight and gender first.").
		on(llm.PurposeClassify, "YES").
		fail(llm.PurposeExtract, errProvider).
		on(llm.PurposeGuardrail, "DENIED").
		on(llm.PurposeDecline, "Sorry, I can only help with health topics.")
	svc := newTestChat(t, db, fake)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, PromptID: topicPtr(store.PromptNutrition), UserQuery: "build me a nutrition plan"})
	require.NoError(t, err)
	res, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, UserQuery: "I am 28, male, 180cm, 75kg"})
	require.NoError(t, err)
	assert.True(t, res.IsOutOfScope)
	assert.Zero(t, fake.count(llm.PurposeAnswer))

	detail, err := svc.Conversation(ctx, user.ID, convID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 5)
	assert.True(t, detail.Messages[0].IsOutOfScope, "the resumed question")
	assert.False(t, detail.Messages[2].IsOutOfScope, "the profile reply")
	assert.True(t, detail.Messages[4].IsOutOfScope, "the decline")
}

func TestChatProfileUpdateWithoutPriorQuestion(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220005")
	fake := newFakeLLM().on(llm.PurposeClassify, "YES").fail(llm.PurposeExtract, errProvider)
	svc := newTestChat(t, db, fake)

	res, err := svc.HandleChat(context.Background(), user.ID, ChatRequest{
		ConvID: uuid.NewString(), PromptID: topicPtr(store.PromptNutrition), UserQuery: "I am 28, male, 180cm, 75kg",
	})
	require.NoError(t, err)
	assert.Equal(t, "profile_updated", res.MessageKey)
	assert.True(t, res.ProfileUpdated)
	assert.Zero(t, fake.count(llm.PurposeAnswer))

	p, err := db.GetProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, MissingFields(p, allProfileFields))
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220006")
	svc := newTestChat(t, db, newFakeLLM())
	ctx := context.Background()

	_, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: "not-a-uuid", UserQuery: "hi"})
	assert.Equal(t, apperr.InvalidConversationID, apperr.KindOf(err))

	_, err = svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: uuid.NewString(), UserQuery: "   "})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: uuid.NewString(), PromptID: topicPtr("astrology"), UserQuery: "hi"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	list, err := svc.History(ctx, user.ID, HistoryQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Pagination.Total)
}

func TestChatRejectsOffTopicOpening(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220007")
	fake := newFakeLLM().on(llm.PurposeClassify, "NO")
	svc := newTestChat(t, db, fake)
	convID := uuid.NewString()

	_, err := svc.HandleChat(context.Background(), user.ID, ChatRequest{ConvID: convID, UserQuery: "who won the football world cup?"})
	assert.Equal(t, apperr.OffTopicOpening, apperr.KindOf(err))

	conv, err := db.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestChatConversationBelongsToOwner(t *testing.T) {
	db := newTestStore(t)
	owner := createTestUser(t, db, "5552220008")
	other := createTestUser(t, db, "5552220009")
	completeProfile(t, db, owner.ID)
	fake := newFakeLLM().on(llm.PurposeGuardrail, "ALLOWED").on(llm.PurposeAnswer, "ok")
	svc := newTestChat(t, db, fake)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := svc.HandleChat(ctx, owner.ID, ChatRequest{ConvID: convID, PromptID: topicPtr(store.PromptBooking), UserQuery: "book a physio"})
	require.NoError(t, err)

	_, err = svc.HandleChat(ctx, other.ID, ChatRequest{ConvID: convID, UserQuery: "hello"})
	assert.Equal(t, apperr.ConversationNotFound, apperr.KindOf(err))
	_, err = svc.Conversation(ctx, other.ID, convID)
	assert.Equal(t, apperr.ConversationNotFound, apperr.KindOf(err))
}

func TestChatTopicIsFixedAtCreation(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220010")
	fake := newFakeLLM().on(llm.PurposeGuardrail, "ALLOWED").on(llm.PurposeAnswer, "ok")
	svc := newTestChat(t, db, fake)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, PromptID: topicPtr(store.PromptShop), UserQuery: "recommend a multivitamin"})
	require.NoError(t, err)
	res, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: convID, PromptID: topicPtr(store.PromptExercise), UserQuery: "and magnesium?"})
	require.NoError(t, err)
	assert.Equal(t, store.PromptShop, res.PromptType)
}

func TestChatFallsBackWhenAnswerFails(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220011")
	fake := newFakeLLM().on(llm.PurposeGuardrail, "ALLOWED").fail(llm.PurposeAnswer, llm.ErrTimeout)
	svc := newTestChat(t, db, fake)

	res, err := svc.HandleChat(context.Background(), user.ID, ChatRequest{
		ConvID: uuid.NewString(), PromptID: topicPtr(store.PromptShop), UserQuery: "where can I buy a yoga mat",
	})
	require.NoError(t, err)
	assert.Equal(t, answerFallback, res.Response)
}

func TestChatHistoryAndOutOfScopeToggle(t *testing.T) {
	db := newTestStore(t)
	user := createTestUser(t, db, "5552220012")
	other := createTestUser(t, db, "5552220013")
	long := strings.Repeat("x", 150)
	fake := newFakeLLM().on(llm.PurposeGuardrail, "ALLOWED").on(llm.PurposeAnswer, long)
	svc := newTestChat(t, db, fake)
	ctx := context.Background()

	var last *ChatResult
	for _, q := range []string{"book a dentist", "find a pharmacy", "book a massage"} {
		res, err := svc.HandleChat(ctx, user.ID, ChatRequest{ConvID: uuid.NewString(), PromptID: topicPtr(store.PromptBooking), UserQuery: q})
		require.NoError(t, err)
		last = res
	}

	page, err := svc.History(ctx, user.ID, HistoryQuery{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 1, PerPage: 2, Total: 3, TotalPages: 2, HasNext: true}, page.Pagination)
	require.Len(t, page.Conversations, 2)
	assert.Equal(t, last.ConvID, page.Conversations[0].ConvID)
	assert.Equal(t, 2, page.Conversations[0].MessageCount)
	assert.Equal(t, strings.Repeat("x", 100)+"...", *page.Conversations[0].LastMessage)

	found, err := svc.History(ctx, user.ID, HistoryQuery{Search: "dentist"})
	require.NoError(t, err)
	assert.Equal(t, 1, found.Pagination.Total)

	_, err = svc.SetOutOfScope(ctx, other, last.MID, true)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	msg, err := svc.SetOutOfScope(ctx, user, last.MID, true)
	require.NoError(t, err)
	assert.True(t, msg.IsOutOfScope)
	_, err = svc.SetOutOfScope(ctx, user, uuid.NewString(), true)
	assert.Equal(t, apperr.MessageNotFound, apperr.KindOf(err))
}
