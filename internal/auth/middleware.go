package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
)

// CookieName is the HttpOnly cookie carrying the session token.
const CookieName = "token"

// contextKey is private to this package, so no other package can read or
// overwrite the user stored under it, even with the same string.
type contextKey string

const userKey contextKey = "user"

// UserLoader is the part of the user repository the middleware needs.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth rejects requests without a valid session with 401. On success
// the loaded user is stored in the request context.
//
// WHERE THE TOKEN COMES FROM:
// Browsers send the HttpOnly "token" cookie set at login; scripts and API
// clients send "Authorization: Bearer <jwt>". A request may carry both, for
// example a browser tab with an old cookie calling the API with a fresh
// header. Each candidate is tried in order (cookie, then bearer) and the
// first one that validates wins, so a stale cookie never hides a good
// header. When none validates, the first candidate's error is reported.
//
// WHY LOAD THE USER?
// The token only proves who the caller was when it was signed. Loading the
// user on every request means a deleted account stops working at once, and
// role changes apply without waiting for the token to expire.
func RequireAuth(tokens *TokenService, users UserLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidates := TokensFromRequest(r)
			if len(candidates) == 0 {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "No authentication token")
				return
			}

			var (
				userID   string
				firstErr error
			)
			for _, raw := range candidates {
				id, err := tokens.Validate(raw)
				if err == nil {
					userID = id
					break
				}
				if firstErr == nil {
					firstErr = err
				}
			}
			if userID == "" {
				msg := "Invalid token"
				if errors.Is(firstErr, ErrTokenExpired) {
					msg = "Token expired"
				}
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", msg)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", "User not found")
					return
				}
				logger.Error("loading authenticated user", "user_id", userID, "error", err)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "Authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin must run after RequireAuth. Non-admins get 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if !user.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "forbidden", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// TokenFromRequest returns the preferred session token: the cookie, else
// the bearer header, else "".
func TokenFromRequest(r *http.Request) string {
	if tokens := TokensFromRequest(r); len(tokens) > 0 {
		return tokens[0]
	}
	return ""
}

// TokensFromRequest returns every session token the request carries, cookie
// first.
func TokensFromRequest(r *http.Request) []string {
	var tokens []string
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// SetTokenCookie stores token in the HttpOnly session cookie.
//
// HttpOnly keeps the token away from page scripts, so an XSS bug cannot
// read it. SameSite=Lax still sends it on top-level navigations, which the
// GitHub callback redirect relies on, but not on cross-site POSTs.
func SetTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearTokenCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeAuthError writes the same {"error","code"} shape as the handlers.
// It lives here because the handler package imports auth, not the reverse.
func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
