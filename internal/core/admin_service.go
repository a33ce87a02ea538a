package core

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/store"
)

type UserQuery struct {
	Page       int
	PerPage    int
	Search     string
	IsVerified *bool
	IsActive   *bool
}

type UserList struct {
	Users      []store.User `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

type ConversationQuery struct {
	Page       int
	PerPage    int
	UserID     *int64
	Search     string
	PromptType store.PromptType
}

type ConversationList struct {
	Conversations []store.ConversationSummary `json:"conversations"`
	Pagination    Pagination                  `json:"pagination"`
}

type MessageQuery struct {
	Page       int
	PerPage    int
	OutOfScope *bool
	UserID     *int64
	ConvID     string
}

type MessageList struct {
	Messages   []store.Message `json:"messages"`
	Pagination Pagination      `json:"pagination"`
}

// AdminService backs the administrator endpoints.
type AdminService struct {
	store  *store.Store
	logger *zap.Logger
}

func NewAdminService(db *store.Store, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{store: db, logger: logger}
}

func (s *AdminService) ListUsers(ctx context.Context, q UserQuery) (*UserList, error) {
	page, perPage, p := PageRequest(q.Page, q.PerPage)
	users, total, err := s.store.ListUsers(ctx, store.UserFilter{
		Search: q.Search, IsVerified: q.IsVerified, IsActive: q.IsActive, Page: p,
	})
	if err != nil {
		return nil, err
	}
	return &UserList{Users: users, Pagination: buildPagination(page, perPage, total)}, nil
}

func (s *AdminService) GetUser(ctx context.Context, id int64) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.UserNotFound)
	}
	return user, nil
}

func (s *AdminService) UpdateUser(ctx context.Context, id int64, flags store.UserFlags) (*store.User, error) {
	user, err := s.store.UpdateUserFlags(ctx, id, flags)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.UserNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user flags updated", zap.Int64("user_id", id))
	return user, nil
}

// DeleteUser soft deletes a user. Administrators cannot delete themselves.
func (s *AdminService) DeleteUser(ctx context.Context, actor *store.User, id int64) error {
	if actor.ID == id {
		return apperr.New(apperr.Forbidden)
	}
	err := s.store.SoftDeleteUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.UserNotFound)
	}
	if err != nil {
		return err
	}
	s.logger.Info("user deleted by admin", zap.Int64("user_id", id), zap.Int64("admin_id", actor.ID))
	return nil
}

func (s *AdminService) ListConversations(ctx context.Context, q ConversationQuery) (*ConversationList, error) {
	if q.PromptType != "" && !q.PromptType.Valid() {
		return nil, apperr.Invalid(map[string]string{"prompt_type": "unknown prompt type"})
	}
	page, perPage, p := PageRequest(q.Page, q.PerPage)
	items, total, err := s.store.ListConversations(ctx, store.ConversationFilter{
		UserID: q.UserID, Search: q.Search, PromptType: q.PromptType, Page: p,
	})
	if err != nil {
		return nil, err
	}
	return &ConversationList{Conversations: items, Pagination: buildPagination(page, perPage, total)}, nil
}

func (s *AdminService) ListMessages(ctx context.Context, q MessageQuery) (*MessageList, error) {
	page, perPage, p := PageRequest(q.Page, q.PerPage)
	messages, total, err := s.store.ListMessagesFiltered(ctx, store.MessageFilter{
		OutOfScope: q.OutOfScope, UserID: q.UserID, ConvID: q.ConvID, Page: p,
	})
	if err != nil {
		return nil, err
	}
	return &MessageList{Messages: messages, Pagination: buildPagination(page, perPage, total)}, nil
}

func (s *AdminService) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Stats(ctx)
}
