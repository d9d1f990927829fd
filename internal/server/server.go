// Package server wires handlers, middleware and routes, and runs the HTTP
// server with graceful shutdown.
//
// It is the composition root of the request path: it receives the already
// opened store and assistant from the command and builds the services and
// handlers on top of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/handler"
	"github.com/sakif/roboanalyzer-hub/internal/middleware"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

const shutdownTimeout = 30 * time.Second

type Config struct {
	Port           int
	AllowedOrigins []string
	CookieSecure   bool
	AdminSecret    string
	AllowedModels  []string
	AITimeout      time.Duration
}

// Deps are the long-lived collaborators opened by the caller. GitHub is nil
// when GitHub sign-in is not configured.
type Deps struct {
	Store     repository.Store
	Assistant assistant.Assistant
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	GitHub    *auth.GitHubProvider
}

type Server struct {
	router  *chi.Mux
	config  Config
	deps    Deps
	logger  *slog.Logger
	started time.Time
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = service.DefaultAITimeout
	}
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		deps:    deps,
		logger:  logger,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts:
//
//	GET  /healthz                          liveness
//	GET  /auth/github/{login,callback}     only with GitHub configured
//	     /api/auth/*                       accounts
//	     /api/chat, /api/chat/*            AI chat          (auth)
//	     /api/messages, /api/messages/*    community board  (auth)
//	GET  /api/stats                        dashboard stats  (auth)
//	     /api/admin/*                      admin panel      (auth + admin)
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	store := s.deps.Store
	authService := service.NewAuthService(store.Users(), store.Chats(), s.deps.Tokens, s.deps.Passwords, s.config.AdminSecret, s.logger)
	chatService := service.NewChatService(store.Chats(), s.deps.Assistant, service.ChatOptions{
		AllowedModels: s.config.AllowedModels,
		Timeout:       s.config.AITimeout,
	}, s.logger)
	communityService := service.NewCommunityService(store.Messages(), store.Users(), s.logger)
	adminService := service.NewAdminService(store, s.deps.Assistant, s.logger)
	statsService := service.NewStatsService(store, s.started)

	authHandler := handler.NewAuthHandler(authService, s.deps.GitHub, s.config.CookieSecure, s.logger)
	chatHandler := handler.NewChatHandler(chatService, s.logger)
	communityHandler := handler.NewCommunityHandler(communityService, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)
	statsHandler := handler.NewStatsHandler(statsService, s.logger)

	requireAuth := auth.RequireAuth(s.deps.Tokens, store.Users(), s.logger)

	s.router.Get("/healthz", handler.HandleLiveness)

	if s.deps.GitHub != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/create-admin", authHandler.HandleCreateAdmin)
			r.Get("/check-admin", authHandler.HandleCheckAdmin)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", authHandler.HandleLogout)
				r.Get("/me", authHandler.HandleMe)
				r.Put("/update-profile", authHandler.HandleUpdateProfile)
				r.Delete("/delete-account", authHandler.HandleDeleteAccount)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/chat", chatHandler.HandleSend)
			r.Get("/chat/history", chatHandler.HandleHistory)
			r.Delete("/chat/history", chatHandler.HandleDeleteFromBody)
			r.Get("/chat/{chatId}", chatHandler.HandleGet)
			r.Delete("/chat/{chatId}", chatHandler.HandleDelete)

			r.Get("/messages", communityHandler.HandleList)
			r.Post("/messages", communityHandler.HandlePost)
			r.Put("/messages/{messageId}", communityHandler.HandleEdit)
			r.Delete("/messages/{messageId}", communityHandler.HandleDelete)

			r.Get("/stats", statsHandler.HandleStats)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/users", adminHandler.HandleListUsers)
				r.Get("/recent-users", adminHandler.HandleRecentUsers)
				r.Put("/users/role", adminHandler.HandleChangeRole)
				r.Delete("/users/bulk", adminHandler.HandleBulkDelete)
				r.Delete("/users/{userId}", adminHandler.HandleDeleteUser)
				r.Get("/health", adminHandler.HandleHealth)
			})
		})
	})
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests. The
// store is owned by the caller.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Reply and title of a chat turn share a single AI timeout.
		WriteTimeout: s.config.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("assistant", s.deps.Assistant.Name()),
			slog.Bool("github_login", s.deps.GitHub != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
