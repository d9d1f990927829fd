package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-secret"

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, "roboanalyzer", cfg.MongoDatabase)
	assert.Equal(t, ProviderGemini, cfg.AIProvider)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 60*time.Second, cfg.AITimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
	assert.False(t, cfg.GitHubEnabled())
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"JWT_SECRET":           testSecret,
		"PORT":                 "9090",
		"STORE_DRIVER":         "sqlite",
		"AI_PROVIDER":          "openai",
		"AI_TIMEOUT":           "5s",
		"AI_MODELS":            "gpt-4o-mini,gpt-3.5-turbo",
		"ALLOWED_ORIGINS":      "https://a.example,https://b.example",
		"LOG_LEVEL":            "debug",
		"GITHUB_CLIENT_ID":     "id",
		"GITHUB_CLIENT_SECRET": "secret",
		"GITHUB_CALLBACK_URL":  "https://hub.example/auth/github/callback",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, ProviderOpenAI, cfg.AIProvider)
	assert.Equal(t, 5*time.Second, cfg.AITimeout)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-3.5-turbo"}, cfg.AIModels)
	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.True(t, cfg.GitHubEnabled())
	assert.Equal(t, "https://hub.example/auth/github/callback", cfg.GitHubCallbackURL)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantMsg string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 16"},
		{"bad driver", map[string]string{"JWT_SECRET": testSecret, "STORE_DRIVER": "postgres"}, "STORE_DRIVER"},
		{"bad provider", map[string]string{"JWT_SECRET": testSecret, "AI_PROVIDER": "llama"}, "AI_PROVIDER"},
		{"bad level", map[string]string{"JWT_SECRET": testSecret, "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad port", map[string]string{"JWT_SECRET": testSecret, "PORT": "70000"}, "PORT"},
		{"bad timeout", map[string]string{"JWT_SECRET": testSecret, "AI_TIMEOUT": "0s"}, "AI_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewLoggerWithWriters_FansOut(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewLoggerWithWriters(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("chat created", "chat_id", "c1")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "chat created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "chat created", entry["msg"])
	assert.Equal(t, "c1", entry["chat_id"])
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hub.log")

	logger, cleanup, err := NewLogger(slog.LevelInfo, path)
	require.NoError(t, err)
	logger.Warn("disk check")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"disk check"`))
}
