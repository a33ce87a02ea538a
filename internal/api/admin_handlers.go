package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/core"
	"lemonhealth.app/backend/internal/store"
)

func (h *APIHandler) AdminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), core.UserQuery{
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
		Search:     r.URL.Query().Get("search"),
		IsVerified: queryBool(r, "is_verified"),
		IsActive:   queryBool(r, "is_active"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "users_retrieved", users)
}

func (h *APIHandler) AdminGetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := h.admin.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "user_retrieved", user)
}

type UpdateUserRequest struct {
	IsActive   *bool `json:"is_active"`
	IsAdmin    *bool `json:"is_admin"`
	IsVerified *bool `json:"is_verified"`
}

func (h *APIHandler) AdminUpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := h.admin.UpdateUser(r.Context(), id, store.UserFlags{
		IsActive: req.IsActive, IsAdmin: req.IsAdmin, IsVerified: req.IsVerified,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "user_updated", user)
}

func (h *APIHandler) AdminDeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.admin.DeleteUser(r.Context(), userFrom(r.Context()), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "user_deleted", nil)
}

func (h *APIHandler) AdminListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	q := core.ConversationQuery{
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
		Search:     r.URL.Query().Get("search"),
		PromptType: store.PromptType(r.URL.Query().Get("prompt_type")),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondError(w, r, apperr.Invalid(map[string]string{"user_id": "must be an integer"}))
			return
		}
		q.UserID = &id
	}

	convs, err := h.admin.ListConversations(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "conversations_retrieved", convs)
}

func (h *APIHandler) AdminListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	q := core.MessageQuery{
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
		OutOfScope: queryBool(r, "is_out_of_scope"),
		ConvID:     r.URL.Query().Get("conv_id"),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondError(w, r, apperr.Invalid(map[string]string{"user_id": "must be an integer"}))
			return
		}
		q.UserID = &id
	}

	messages, err := h.admin.ListMessages(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "messages_retrieved", messages)
}

func (h *APIHandler) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "stats_retrieved", stats)
}

func (h *APIHandler) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.respondError(w, r, apperr.New(apperr.UserNotFound))
		return 0, false
	}
	return id, true
}
