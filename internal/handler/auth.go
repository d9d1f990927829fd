package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves the account endpoints and the optional GitHub sign-in.
//
//   - /api/auth/*            → password accounts, profile, admin bootstrap
//   - /auth/github/login     → redirect to GitHub with a CSRF state cookie
//   - /auth/github/callback  → exchange the code, sign in, redirect
type AuthHandler struct {
	svc          *service.AuthService
	github       *auth.GitHubProvider // nil when GitHub sign-in is not configured
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:          svc,
		github:       github,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type createAdminRequest struct {
	registerRequest
	AdminSecret string `json:"adminSecret"`
}

type sessionResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
	Token   string      `json:"token"`
}

type userResponse struct {
	Message string      `json:"message,omitempty"`
	User    *model.User `json:"user"`
}

// HandleRegister → POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	res, err := h.svc.Register(r.Context(), service.RegisterInput(req))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.svc.TokenTTL(), h.cookieSecure)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Message: "User registered successfully",
		User:    res.User,
		Token:   res.Token,
	})
}

// HandleLogin → POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.svc.TokenTTL(), h.cookieSecure)
	writeJSON(w, http.StatusOK, sessionResponse{
		Message: "Login successful",
		User:    res.User,
		Token:   res.Token,
	})
}

// HandleLogout → POST /api/auth/logout
//
// Sessions are stateless JWTs, so logging out only clears the cookie and
// the presence flag. The token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), user); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.ClearTokenCookie(w, h.cookieSecure)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// HandleMe → GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleUpdateProfile → PUT /api/auth/update-profile
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user, service.ProfileUpdate(req))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Profile updated successfully", User: updated})
}

// HandleDeleteAccount → DELETE /api/auth/delete-account
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), user); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.ClearTokenCookie(w, h.cookieSecure)
	writeMessage(w, http.StatusOK, "Account deleted successfully")
}

// HandleCreateAdmin → POST /api/auth/create-admin
func (h *AuthHandler) HandleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	admin, err := h.svc.CreateAdmin(r.Context(), service.CreateAdminInput{
		RegisterInput: service.RegisterInput(req.registerRequest),
		AdminSecret:   req.AdminSecret,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		Message: "Admin user created successfully! You can now login.",
		User:    admin,
	})
}

// HandleCheckAdmin → GET /api/auth/check-admin
func (h *AuthHandler) HandleCheckAdmin(w http.ResponseWriter, r *http.Request) {
	exists, err := h.svc.AdminExists(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"adminExists": exists})
}

// HandleGitHubLogin → GET /auth/github/login
//
// The random state is kept in a short-lived HttpOnly cookie and compared on
// callback, which proves the callback was started by this server.
//
// The cookie lives ten minutes, long enough to approve the app on GitHub.
// SameSite=Lax is required here: the callback arrives as a top-level
// redirect from github.com, and a Strict cookie would not be sent with it.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback → GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, h.logger, r, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// Single use: clear the state so a replayed callback URL fails.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/auth/login?error=github_denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, h.logger, r, apperror.ValidationFailed("code", "Missing authorization code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, h.logger, r, apperror.Upstream("GitHub sign-in failed", err))
		return
	}

	res, err := h.svc.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.svc.TokenTTL(), h.cookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// currentUser returns the user stored by auth.RequireAuth. Routes that call
// it are always behind that middleware; the 401 is a guard against wiring
// mistakes.
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required", Code: "unauthorized"})
		return nil, false
	}
	return user, true
}
