package api

import (
	"context"
	"net/http"
	"strings"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/auth"
	"lemonhealth.app/backend/internal/i18n"
	"lemonhealth.app/backend/internal/store"
)

type contextKey string

const (
	userKey     contextKey = "user"
	claimsKey   contextKey = "claims"
	languageKey contextKey = "language"
)

// LanguageMiddleware resolves the App-Language header once per request.
func (h *APIHandler) LanguageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := h.tr.Normalize(r.Header.Get("App-Language"))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), languageKey, lang)))
	})
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.respondError(w, r, apperr.New(apperr.Unauthorized))
			return
		}

		claims, user, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly must run after JWTAuthMiddleware.
func (h *APIHandler) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := userFrom(r.Context()); user == nil || !user.IsAdmin {
			h.respondError(w, r, apperr.New(apperr.Forbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func userFrom(ctx context.Context) *store.User {
	user, _ := ctx.Value(userKey).(*store.User)
	return user
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func languageFrom(ctx context.Context) string {
	if lang, ok := ctx.Value(languageKey).(string); ok {
		return lang
	}
	return i18n.DefaultLanguage
}
