package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/handler"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository/sqlite"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

const adminSecret = "handler-test-secret"

// MockAssistant answers every turn with Text, or fails with Err.
type MockAssistant struct {
	Text     string
	Err      error
	Captured []assistant.Request
}

func (m *MockAssistant) Name() string         { return "mock" }
func (m *MockAssistant) DefaultModel() string { return "mock-model" }

func (m *MockAssistant) Reply(_ context.Context, req assistant.Request) (*assistant.Reply, error) {
	m.Captured = append(m.Captured, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &assistant.Reply{Text: m.Text, Usage: assistant.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14}}, nil
}

func (m *MockAssistant) Title(context.Context, string) (string, error) { return "Joint Limits", nil }
func (m *MockAssistant) Check(context.Context) error                   { return m.Err }

type testEnv struct {
	db        *sqlite.DB
	ai        *MockAssistant
	auth      *handler.AuthHandler
	chat      *handler.ChatHandler
	community *handler.CommunityHandler
	admin     *handler.AdminHandler
	stats     *handler.StatsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	tokens, err := auth.NewTokenService("handler-test-secret-32-characters", time.Hour)
	require.NoError(t, err)

	ai := &MockAssistant{Text: "Set the joint limits in the DH table."}
	authSvc := service.NewAuthService(db.Users(), db.Chats(), tokens, auth.NewPasswordServiceForTest(4), adminSecret, logger)

	return &testEnv{
		db:        db,
		ai:        ai,
		auth:      handler.NewAuthHandler(authSvc, nil, false, logger),
		chat:      handler.NewChatHandler(service.NewChatService(db.Chats(), ai, service.ChatOptions{}, logger), logger),
		community: handler.NewCommunityHandler(service.NewCommunityService(db.Messages(), db.Users(), logger), logger),
		admin:     handler.NewAdminHandler(service.NewAdminService(db, ai, logger), logger),
		stats:     handler.NewStatsHandler(service.NewStatsService(db, time.Now()), logger),
	}
}

func (e *testEnv) user(t *testing.T, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return u
}

// call runs h directly. user is placed in the context the way RequireAuth
// does it; params become chi URL parameters.
func call(h http.HandlerFunc, method, target, body string, user *model.User, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if user != nil {
		ctx = auth.WithUser(ctx, user)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	rr := httptest.NewRecorder()
	h(rr, req.WithContext(ctx))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body), "body: %s", rr.Body.String())
	return body
}

func TestAuthHandler_Register(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created", func(t *testing.T) {
		rr := call(env.auth.HandleRegister, http.MethodPost, "/api/auth/register",
			`{"username":"newbie","email":"newbie@example.com","password":"secret1"}`, nil, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		body := decode(t, rr)
		assert.Equal(t, "User registered successfully", body["message"])
		assert.NotEmpty(t, body["token"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "newbie", user["username"])
		assert.Equal(t, "user", user["role"])
		assert.NotContains(t, user, "password")
		assert.NotContains(t, user, "passwordHash")
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := call(env.auth.HandleRegister, http.MethodPost, "/api/auth/register",
			`{"username":"other","email":"NEWBIE@example.com","password":"secret1"}`, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decode(t, rr)
		assert.Equal(t, "Email already registered", body["error"])
		assert.Equal(t, "conflict", body["code"])
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := call(env.auth.HandleRegister, http.MethodPost, "/api/auth/register", `{"username":"x"}`, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "All fields are required", decode(t, rr)["error"])
	})

	t.Run("invalid JSON", func(t *testing.T) {
		rr := call(env.auth.HandleRegister, http.MethodPost, "/api/auth/register", `{"username":`, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decode(t, rr)["code"])
	})
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	call(env.auth.HandleRegister, http.MethodPost, "/", `{"username":"pilot","email":"pilot@example.com","password":"secret1"}`, nil, nil)

	rr := call(env.auth.HandleLogin, http.MethodPost, "/api/auth/login", `{"email":"pilot@example.com","password":"secret1"}`, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, true, body["user"].(map[string]any)["isOnline"])

	rr = call(env.auth.HandleLogin, http.MethodPost, "/api/auth/login", `{"email":"pilot@example.com","password":"nope!!"}`, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid email or password", decode(t, rr)["error"])
}

func TestAuthHandler_SessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "member", model.RoleUser)
	admin := env.user(t, "boss", model.RoleAdmin)

	rr := call(env.auth.HandleMe, http.MethodGet, "/api/auth/me", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "member", decode(t, rr)["user"].(map[string]any)["username"])

	rr = call(env.auth.HandleMe, http.MethodGet, "/api/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(env.auth.HandleUpdateProfile, http.MethodPut, "/api/auth/update-profile", `{"username":"boss"}`, user, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Username already taken", decode(t, rr)["error"])

	rr = call(env.auth.HandleUpdateProfile, http.MethodPut, "/api/auth/update-profile", `{"username":"member_2"}`, user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "member_2", decode(t, rr)["user"].(map[string]any)["username"])

	rr = call(env.auth.HandleDeleteAccount, http.MethodDelete, "/api/auth/delete-account", "", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.auth.HandleLogout, http.MethodPost, "/api/auth/logout", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rr = call(env.auth.HandleDeleteAccount, http.MethodDelete, "/api/auth/delete-account", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	_, err := env.db.Users().GetByID(context.Background(), user.ID)
	assert.Error(t, err)
}

func TestAuthHandler_AdminBootstrap(t *testing.T) {
	env := newTestEnv(t)
	body := `{"username":"root_admin","email":"root@example.com","password":"secret1","adminSecret":"%s"}`

	rr := call(env.auth.HandleCheckAdmin, http.MethodGet, "/api/auth/check-admin", "", nil, nil)
	assert.Equal(t, false, decode(t, rr)["adminExists"])

	rr = call(env.auth.HandleCreateAdmin, http.MethodPost, "/", strings.Replace(body, "%s", "wrong", 1), nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(env.auth.HandleCreateAdmin, http.MethodPost, "/", strings.Replace(body, "%s", adminSecret, 1), nil, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "admin", decode(t, rr)["user"].(map[string]any)["role"])

	second := strings.Replace(strings.Replace(body, "%s", adminSecret, 1), "root", "second", 2)
	rr = call(env.auth.HandleCreateAdmin, http.MethodPost, "/", second, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.auth.HandleCheckAdmin, http.MethodGet, "/api/auth/check-admin", "", nil, nil)
	assert.Equal(t, true, decode(t, rr)["adminExists"])
}

func TestChatHandler(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "student", model.RoleUser)

	rr := call(env.chat.HandleSend, http.MethodPost, "/api/chat",
		`{"messages":[{"role":"user","content":"How do I limit joint 2?"}]}`, user, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sent := decode(t, rr)
	assert.Equal(t, env.ai.Text, sent["response"])
	assert.Equal(t, "Joint Limits", sent["title"])
	assert.Equal(t, float64(14), sent["usage"].(map[string]any)["totalTokens"])
	chatID := sent["chatId"].(string)
	require.NotEmpty(t, chatID)

	rr = call(env.chat.HandleHistory, http.MethodGet, "/api/chat/history", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	histories := decode(t, rr)["histories"].([]any)
	require.Len(t, histories, 1)
	assert.Equal(t, float64(2), histories[0].(map[string]any)["messageCount"])

	rr = call(env.chat.HandleGet, http.MethodGet, "/api/chat/"+chatID, "", user, map[string]string{"chatId": chatID})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["messages"], 2)

	rr = call(env.chat.HandleDeleteFromBody, http.MethodDelete, "/api/chat/history", `{}`, user, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.chat.HandleDeleteFromBody, http.MethodDelete, "/api/chat/history", `{"chatId":"`+chatID+`"}`, user, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(env.chat.HandleGet, http.MethodGet, "/api/chat/"+chatID, "", user, map[string]string{"chatId": chatID})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = call(env.chat.HandleDelete, http.MethodDelete, "/api/chat/"+chatID, "", user, map[string]string{"chatId": chatID})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChatHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "student", model.RoleUser)

	rr := call(env.chat.HandleSend, http.MethodPost, "/api/chat", `{"messages":[]}`, user, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.chat.HandleSend, http.MethodPost, "/api/chat",
		`{"chatId":"nope","messages":[{"role":"user","content":"hi"}]}`, user, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.ai.Err = errors.New("provider exploded")
	rr = call(env.chat.HandleSend, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`, user, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "upstream_error", body["code"])
	assert.NotContains(t, body["error"], "exploded")
}

func TestCommunityHandler(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "poster", model.RoleUser)
	admin := env.user(t, "boss", model.RoleAdmin)

	rr := call(env.community.HandlePost, http.MethodPost, "/api/messages",
		`{"content":"`+strings.Repeat("a", 1001)+`"}`, user, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Message cannot exceed 1000 characters", decode(t, rr)["error"])

	rr = call(env.community.HandlePost, http.MethodPost, "/api/messages", `{"content":"hi","type":"announcement"}`, user, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(env.community.HandlePost, http.MethodPost, "/api/messages", `{"content":"first!"}`, user, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	posted := decode(t, rr)["message"].(map[string]any)
	msgID := posted["id"].(string)
	assert.Equal(t, "general", posted["room"])
	assert.Equal(t, "poster", posted["user"].(map[string]any)["username"])

	rr = call(env.community.HandleList, http.MethodGet, "/api/messages?room=general&limit=10", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["messages"], 1)

	rr = call(env.community.HandleList, http.MethodGet, "/api/messages?limit=many", "", user, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	params := map[string]string{"messageId": msgID}
	rr = call(env.community.HandleEdit, http.MethodPut, "/api/messages/"+msgID, `{"content":"edited"}`, user, params)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(env.community.HandleEdit, http.MethodPut, "/api/messages/"+msgID, `{"content":"edited"}`, admin, params)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["message"].(map[string]any)["edited"])

	rr = call(env.community.HandleDelete, http.MethodDelete, "/api/messages/"+msgID, "", admin, params)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(env.community.HandleDelete, http.MethodDelete, "/api/messages/"+msgID, "", admin, params)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminHandler(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "boss", model.RoleAdmin)
	a := env.user(t, "member_a", model.RoleUser)
	b := env.user(t, "member_b", model.RoleUser)

	rr := call(env.admin.HandleListUsers, http.MethodGet, "/api/admin/users", "", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["users"], 3)

	rr = call(env.admin.HandleRecentUsers, http.MethodGet, "/api/admin/recent-users", "", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["users"], 3)

	rr = call(env.admin.HandleChangeRole, http.MethodPut, "/api/admin/users/role", `{"userId":"`+admin.ID+`","role":"user"}`, admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.admin.HandleChangeRole, http.MethodPut, "/api/admin/users/role", `{"userId":"`+a.ID+`","role":"wizard"}`, admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.admin.HandleChangeRole, http.MethodPut, "/api/admin/users/role", `{"userId":"`+a.ID+`","role":"admin"}`, admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", decode(t, rr)["user"].(map[string]any)["role"])

	rr = call(env.admin.HandleDeleteUser, http.MethodDelete, "/", "", admin, map[string]string{"userId": admin.ID})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Cannot delete your own account", decode(t, rr)["error"])

	rr = call(env.admin.HandleDeleteUser, http.MethodDelete, "/", "", admin, map[string]string{"userId": "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(env.admin.HandleBulkDelete, http.MethodDelete, "/api/admin/users/bulk", `{"userIds":["`+b.ID+`","`+admin.ID+`"]}`, admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.admin.HandleBulkDelete, http.MethodDelete, "/api/admin/users/bulk", `{"userIds":[]}`, admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(env.admin.HandleBulkDelete, http.MethodDelete, "/api/admin/users/bulk", `{"userIds":["`+a.ID+`","`+b.ID+`"]}`, admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["deletedCount"])

	rr = call(env.admin.HandleHealth, http.MethodGet, "/api/admin/health", "", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, true, body["success"])
	health := body["health"].(map[string]any)
	assert.Equal(t, "healthy", health["database"])
	assert.Equal(t, "healthy", health["ai"])
}

func TestStatsHandler(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "student", model.RoleUser)
	admin := env.user(t, "boss", model.RoleAdmin)

	rr := call(env.stats.HandleStats, http.MethodGet, "/api/stats", "", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(0), stats["totalChats"])
	assert.NotContains(t, stats, "totalUsers")

	rr = call(env.stats.HandleStats, http.MethodGet, "/api/stats", "", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats = decode(t, rr)["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["totalUsers"])
	assert.Contains(t, stats, "systemUptime")
}
