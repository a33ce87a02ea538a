package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
)

// Envelope wraps every JSON response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respond writes a successful envelope with the translated message for key.
func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request, status int, key string, data any) {
	writeJSON(w, status, Envelope{
		Success: true,
		Message: h.tr.T(r.Context(), languageFrom(r.Context()), key),
		Data:    data,
	})
}

// respondError maps err to its kind's status and translated message. Errors
// that are not domain errors are logged and reported as internal.
func (h *APIHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		appErr = apperr.Wrap(apperr.Internal, err)
	}

	var data any = appErr.Data
	if len(appErr.Fields) > 0 {
		data = map[string]any{"errors": appErr.Fields}
	}
	writeJSON(w, appErr.Kind.Status(), Envelope{
		Success: false,
		Message: h.tr.T(r.Context(), languageFrom(r.Context()), appErr.Kind.Key()),
		Data:    data,
	})
}

// decodeJSON reads the request body into dst. Malformed bodies are reported
// as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Invalid(map[string]string{"body": "invalid JSON: " + err.Error()})
	}
	return nil
}

// required reports empty string fields as validation errors.
func required(fields map[string]string) error {
	missing := map[string]string{}
	for name, value := range fields {
		if value == "" {
			missing[name] = "field required"
		}
	}
	if len(missing) > 0 {
		return apperr.Invalid(missing)
	}
	return nil
}
