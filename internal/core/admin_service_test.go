package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/store"
)

func TestAdminService(t *testing.T) {
	db := newTestStore(t)
	admin := createTestUser(t, db, "5555550001")
	user := createTestUser(t, db, "5555550002")
	svc := NewAdminService(db, nil)
	ctx := context.Background()

	fake := newFakeLLM().on(llm.PurposeGuardrail, "DENIED").on(llm.PurposeDecline, "no")
	chat := newTestChat(t, db, fake)
	_, err := chat.HandleChat(ctx, user.ID, ChatRequest{ConvID: uuid.NewString(), PromptID: topicPtr(store.PromptShop), UserQuery: "tell me a joke"})
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx, UserQuery{PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, users.Pagination.Total)
	assert.True(t, users.Pagination.HasNext)

	updated, err := svc.UpdateUser(ctx, user.ID, store.UserFlags{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	_, err = svc.UpdateUser(ctx, 9999, store.UserFlags{IsAdmin: ptr(true)})
	assert.Equal(t, apperr.UserNotFound, apperr.KindOf(err))

	oos, err := svc.ListMessages(ctx, MessageQuery{OutOfScope: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 2, oos.Pagination.Total)

	convs, err := svc.ListConversations(ctx, ConversationQuery{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, convs.Pagination.Total)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Conversations)
	assert.Equal(t, 2, stats.OutOfScopeMessages)

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(svc.DeleteUser(ctx, admin, admin.ID)))
	require.NoError(t, svc.DeleteUser(ctx, admin, user.ID))
	_, err = svc.GetUser(ctx, user.ID)
	assert.Equal(t, apperr.UserNotFound, apperr.KindOf(err))
}

func TestPagination(t *testing.T) {
	page, perPage, p := PageRequest(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, maxPerPage, perPage)
	assert.Equal(t, store.Page{Limit: 100, Offset: 0}, p)

	_, _, p = PageRequest(3, 10)
	assert.Equal(t, 20, p.Offset)

	assert.Equal(t, Pagination{Page: 2, PerPage: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}, buildPagination(2, 10, 25))
	assert.Equal(t, Pagination{Page: 1, PerPage: 10}, buildPagination(1, 10, 0))
}
