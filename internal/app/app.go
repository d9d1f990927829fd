// Package app opens the long-lived dependencies described by the config:
// the store, the AI assistant and the auth services. Commands build an App
// once and close it on the way out.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openai/openai-go/option"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/assistant/gemini"
	"github.com/sakif/roboanalyzer-hub/internal/assistant/openai"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/config"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
	"github.com/sakif/roboanalyzer-hub/internal/repository/mongodb"
	"github.com/sakif/roboanalyzer-hub/internal/repository/sqlite"
	"github.com/sakif/roboanalyzer-hub/internal/server"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

type App struct {
	Config    *config.Config
	Store     repository.Store
	Assistant assistant.Assistant
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	GitHub    *auth.GitHubProvider

	logger  *slog.Logger
	closers []func() error
}

// Open connects the store and builds the assistant. On error everything
// opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	logger.Info("store opened", slog.String("driver", cfg.StoreDriver))

	ai, closeAI, err := NewAssistant(ctx, cfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Assistant = ai
	if closeAI != nil {
		a.closers = append(a.closers, closeAI)
	}

	a.Tokens, err = auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("token service: %w", err)
	}
	a.Passwords = auth.NewPasswordService()

	if cfg.GitHubEnabled() {
		a.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	return a, nil
}

// OpenStore opens the store selected by STORE_DRIVER. For SQLite the parent
// directory of the database file is created first.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		store, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongodb store: %w", err)
		}
		return store, nil

	case config.StoreSQLite:
		if cfg.SQLitePath != ":memory:" {
			dir := filepath.Dir(cfg.SQLitePath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// NewAssistant builds the configured provider. A provider without an API key
// (or AI_PROVIDER=none) yields assistant.Disabled so the rest of the service
// still runs. The returned close func is nil when there is nothing to close.
func NewAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger) (assistant.Assistant, func() error, error) {
	var (
		ai      assistant.Assistant
		closeFn func() error
		err     error
	)

	switch cfg.AIProvider {
	case config.ProviderGemini:
		var c *gemini.Client
		c, err = gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err == nil {
			ai, closeFn = c, c.Close
		}
	case config.ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
		}
		var c *openai.Client
		c, err = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...)
		if err == nil {
			ai = c
		}
	case config.ProviderNone:
		err = assistant.ErrNotConfigured
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}

	if errors.Is(err, assistant.ErrNotConfigured) {
		logger.Warn("AI provider not configured, chat replies are disabled",
			slog.String("provider", cfg.AIProvider))
		return assistant.Disabled{Provider: cfg.AIProvider}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("AI provider ready",
		slog.String("provider", ai.Name()),
		slog.String("model", ai.DefaultModel()))
	return ai, closeFn, nil
}

// Server builds the HTTP server on top of the opened dependencies.
func (a *App) Server() *server.Server {
	return server.New(server.Config{
		Port:           a.Config.Port,
		AllowedOrigins: a.Config.AllowedOrigins,
		CookieSecure:   a.Config.CookieSecure,
		AdminSecret:    a.Config.AdminSecret,
		AllowedModels:  a.Config.AIModels,
		AITimeout:      a.Config.AITimeout,
	}, server.Deps{
		Store:     a.Store,
		Assistant: a.Assistant,
		Tokens:    a.Tokens,
		Passwords: a.Passwords,
		GitHub:    a.GitHub,
	}, a.logger)
}

// AuthService is used by commands that manage accounts outside HTTP.
func (a *App) AuthService() *service.AuthService {
	return service.NewAuthService(a.Store.Users(), a.Store.Chats(), a.Tokens, a.Passwords, a.Config.AdminSecret, a.logger)
}

// Close releases the assistant and the store, in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close(ctx))
	}
	return errors.Join(errs...)
}
