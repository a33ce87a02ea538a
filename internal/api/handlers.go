package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/core"
	"lemonhealth.app/backend/internal/i18n"
)

// Services groups the domain services the HTTP layer calls into.
type Services struct {
	Auth      *core.AuthService
	Profiles  *core.ProfileService
	Chat      *core.ChatService
	Documents *core.DocumentService
	Admin     *core.AdminService
}

type APIHandler struct {
	auth      *core.AuthService
	profiles  *core.ProfileService
	chat      *core.ChatService
	documents *core.DocumentService
	admin     *core.AdminService

	tr          *i18n.Translator
	logger      *zap.Logger
	baseURL     string
	streamDelay time.Duration
}

func NewAPIHandler(svc Services, tr *i18n.Translator, logger *zap.Logger, baseURL string, streamDelay time.Duration) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		auth:        svc.Auth,
		profiles:    svc.Profiles,
		chat:        svc.Chat,
		documents:   svc.Documents,
		admin:       svc.Admin,
		tr:          tr,
		logger:      logger,
		baseURL:     baseURL,
		streamDelay: streamDelay,
	}
}

type smsResult struct {
	SMSSent bool `json:"sms_sent"`
}

// codeSent picks the envelope key for an endpoint that texts a code.
func codeSent(sent bool, key string) string {
	if !sent {
		return "sms_delivery_failed"
	}
	return key
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, codeSent(res.SMSSent, "user_registered"), res)
}

type LoginRequest struct {
	core.Phone
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"password": req.Password}); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "login_successful", res)
}

type CodeRequest struct {
	core.Phone
	Code string `json:"code"`
}

func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.auth.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "verification_successful", res)
}

func (h *APIHandler) ResendVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req core.Phone
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	sent, err := h.auth.ResendVerification(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, codeSent(sent, "verification_code_sent"), smsResult{SMSSent: sent})
}

func (h *APIHandler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req core.Phone
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	sent, err := h.auth.ForgotPassword(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, codeSent(sent, "password_reset_code_sent"), smsResult{SMSSent: sent})
}

type ResetPasswordRequest struct {
	core.Phone
	Code            string `json:"code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *APIHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	err := h.auth.ResetPassword(r.Context(), req.Phone, req.Code, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "password_reset_successful", nil)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *APIHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	err := h.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "password_changed", nil)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"refresh_token": req.RefreshToken}); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "token_refreshed", res)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.Body != http.NoBody && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	if err := h.auth.Logout(r.Context(), claimsFrom(r.Context()), req.RefreshToken); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "logged_out", nil)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, "user_retrieved", userFrom(r.Context()))
}

func (h *APIHandler) DeleteMeHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := h.auth.DeleteMe(r.Context(), user.ID, claimsFrom(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("user deleted account", zap.Int64("user_id", user.ID))
	h.respond(w, r, http.StatusOK, "user_deleted", nil)
}

func (h *APIHandler) RequestLoginCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req core.Phone
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	sent, err := h.auth.RequestLoginCode(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, codeSent(sent, "login_code_sent"), smsResult{SMSSent: sent})
}

func (h *APIHandler) VerifyLoginCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.auth.VerifyLoginCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "login_successful", res)
}
