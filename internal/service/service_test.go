package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository/sqlite"
)

const testAdminSecret = "let-me-in-please"

// fakeAssistant records every request and answers with canned values.
type fakeAssistant struct {
	mu       sync.Mutex
	model    string
	text     string
	err      error
	title    string
	titleErr error
	checkErr error
	// block makes Reply wait for its context to end.
	block bool
	// delay is how long Reply and Title each take, unless their context
	// ends first.
	delay time.Duration

	requests []assistant.Request
	titles   []string
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{model: "fake-model", text: "Use the DH parameters panel.", title: `"Robot Kinematics Help"`}
}

func (f *fakeAssistant) Name() string         { return "fake" }
func (f *fakeAssistant) DefaultModel() string { return f.model }

func (f *fakeAssistant) Reply(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.Reply{
		Text:  f.text,
		Usage: assistant.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func (f *fakeAssistant) Title(ctx context.Context, first string) (string, error) {
	f.mu.Lock()
	f.titles = append(f.titles, first)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.title, f.titleErr
}

func (f *fakeAssistant) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAssistant) Check(context.Context) error { return f.checkErr }

func (f *fakeAssistant) lastRequest(t *testing.T) assistant.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "assistant was never called")
	return f.requests[len(f.requests)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func newTestAuthService(t *testing.T, db *sqlite.DB) *AuthService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	// Cost 4 is bcrypt's minimum and keeps these tests fast.
	return NewAuthService(db.Users(), db.Chats(), tokens, auth.NewPasswordServiceForTest(4), testAdminSecret, quietLogger())
}

// seedUser inserts a user directly through the repository.
func seedUser(t *testing.T, db *sqlite.DB, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

// seedChat creates an active chat with one exchange for userID.
func seedChat(t *testing.T, db *sqlite.DB, userID, title string) *model.ChatHistory {
	t.Helper()
	ts := time.Now().UTC()
	c := &model.ChatHistory{
		UserID: userID,
		Title:  title,
		Model:  "fake-model",
		Messages: []model.ChatMessage{
			{Role: model.ChatRoleUser, Content: "hello", Timestamp: ts},
			{Role: model.ChatRoleAssistant, Content: "hi there", Timestamp: ts},
		},
	}
	require.NoError(t, db.Chats().Create(context.Background(), c))
	return c
}
