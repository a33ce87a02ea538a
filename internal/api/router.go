package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	// MediaRoot is served under /media when set.
	MediaRoot string
	// StaticRoot is served under /static when set.
	StaticRoot string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func NewRouter(apiHandler *APIHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "App-Language", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Conversation-ID", "X-Message-ID", "X-Out-Of-Scope"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(apiHandler.LanguageMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.MediaRoot != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaRoot))))
	}
	if cfg.StaticRoot != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticRoot))))
	}

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public routes
			r.Post("/register", apiHandler.RegisterHandler)
			r.Post("/login", apiHandler.LoginHandler)
			r.Post("/verify", apiHandler.VerifyHandler)
			r.Post("/resend-verification", apiHandler.ResendVerificationHandler)
			r.Post("/forgot-password", apiHandler.ForgotPasswordHandler)
			r.Post("/reset-password", apiHandler.ResetPasswordHandler)
			r.Post("/refresh-token", apiHandler.RefreshHandler)
			r.Post("/login-code", apiHandler.RequestLoginCodeHandler)
			r.Post("/login-code/verify", apiHandler.VerifyLoginCodeHandler)

			r.Group(func(r chi.Router) {
				r.Use(apiHandler.JWTAuthMiddleware)
				r.Post("/change-password", apiHandler.ChangePasswordHandler)
				r.Post("/logout", apiHandler.LogoutHandler)
				r.Get("/me", apiHandler.MeHandler)
				r.Delete("/me", apiHandler.DeleteMeHandler)
			})
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/profile", apiHandler.GetProfileHandler)
			r.Post("/profile", apiHandler.SaveProfileHandler)
			r.Delete("/profile", apiHandler.DeleteProfileHandler)
			r.Post("/profile/picture", apiHandler.UploadProfilePictureHandler)

			r.Get("/chat/prompts", apiHandler.ListPromptsHandler)
			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/chat/history", apiHandler.ChatHistoryHandler)
			r.Get("/chat/history/{convID}", apiHandler.ConversationHandler)
			r.Patch("/chat/messages/{mid}/out-of-scope", apiHandler.SetOutOfScopeHandler)

			r.Post("/documents/upload", apiHandler.UploadDocumentHandler)
			r.Get("/documents", apiHandler.ListDocumentsHandler)
			r.Get("/documents/{documentID}", apiHandler.GetDocumentHandler)

			r.Route("/admin", func(r chi.Router) {
				r.Use(apiHandler.AdminOnly)
				r.Get("/users", apiHandler.AdminListUsersHandler)
				r.Get("/users/{userID}", apiHandler.AdminGetUserHandler)
				r.Patch("/users/{userID}", apiHandler.AdminUpdateUserHandler)
				r.Delete("/users/{userID}", apiHandler.AdminDeleteUserHandler)
				r.Get("/conversations", apiHandler.AdminListConversationsHandler)
				r.Get("/messages", apiHandler.AdminListMessagesHandler)
				r.Patch("/messages/{mid}/out-of-scope", apiHandler.SetOutOfScopeHandler)
				r.Get("/stats", apiHandler.AdminStatsHandler)
			})
		})
	})

	return r
}
