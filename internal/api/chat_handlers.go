package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/core"
	"lemonhealth.app/backend/internal/store"
	"lemonhealth.app/backend/internal/utils"
)

type PromptResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	PromptType  store.PromptType `json:"prompt_type"`
	IconURL     string           `json:"icon_url"`
}

func (h *APIHandler) ListPromptsHandler(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.chat.Prompts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]PromptResponse, 0, len(prompts))
	for _, p := range prompts {
		resp = append(resp, PromptResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			PromptType:  p.PromptType,
			IconURL:     h.baseURL + p.IconPath,
		})
	}
	h.respond(w, r, http.StatusOK, "prompts_retrieved", resp)
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req core.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.chat.HandleChat(r.Context(), user.ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Streamed {
		h.stream(w, r, res)
		return
	}
	h.respond(w, r, http.StatusOK, res.MessageKey, res)
}

// stream writes the reply as plain text one sentence at a time. The reply
// metadata travels in response headers.
func (h *APIHandler) stream(w http.ResponseWriter, r *http.Request, res *core.ChatResult) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Conversation-ID", res.ConvID)
	w.Header().Set("X-Message-ID", res.MID)
	w.Header().Set("X-Out-Of-Scope", strconv.FormatBool(res.IsOutOfScope))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for i, chunk := range utils.SplitSentences(res.Response) {
		if i > 0 && h.streamDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.streamDelay):
			}
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			h.logger.Debug("stream aborted", zap.String("conv_id", res.ConvID), zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	history, err := h.chat.History(r.Context(), userFrom(r.Context()).ID, core.HistoryQuery{
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
		Search:     q.Get("search"),
		PromptType: store.PromptType(q.Get("prompt_type")),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "chat_history_retrieved", history)
}

func (h *APIHandler) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := h.chat.Conversation(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "convID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "chat_history_retrieved", detail)
}

type OutOfScopeRequest struct {
	IsOutOfScope *bool `json:"is_out_of_scope"`
}

func (h *APIHandler) SetOutOfScopeHandler(w http.ResponseWriter, r *http.Request) {
	var req OutOfScopeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.IsOutOfScope == nil {
		h.respondError(w, r, apperr.Invalid(map[string]string{"is_out_of_scope": "field required"}))
		return
	}

	msg, err := h.chat.SetOutOfScope(r.Context(), userFrom(r.Context()), chi.URLParam(r, "mid"), *req.IsOutOfScope)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "message_updated", msg)
}

// queryInt returns the integer query parameter, or 0 when absent or invalid.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func queryBool(r *http.Request, name string) *bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return nil
	}
	return &b
}
