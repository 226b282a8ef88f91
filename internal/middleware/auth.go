package middleware

import (
	"context"
	"net/http"
	"sync"

	"liftlog/internal/domain"
	"liftlog/internal/observability"
)

type contextKey string

const (
	userIDKey      contextKey = "user_id"
	sessionKey     contextKey = "session"
	userKey        contextKey = "user"
	authContextKey contextKey = "auth_context"
)

// SessionValidator resolves a session token to its session and user.
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (domain.SessionValidationResult, error)
}

// AuthContext holds the validation result for one request. The token is
// validated at most once, on the first call to Get.
type AuthContext struct {
	validator SessionValidator
	token     string
	hasToken  bool

	once   sync.Once
	result domain.SessionValidationResult
	err    error
}

// Get returns the memoised validation result, validating on first use.
func (a *AuthContext) Get(ctx context.Context) (domain.SessionValidationResult, error) {
	a.once.Do(func() {
		if !a.hasToken {
			return
		}
		a.result, a.err = a.validator.ValidateSessionToken(ctx, a.token)
	})
	return a.result, a.err
}

// HasToken reports whether the request carried a session cookie.
func (a *AuthContext) HasToken() bool {
	return a.hasToken
}

// Session attaches a fresh AuthContext to every request. Nothing is
// validated until a handler or RequireAuth asks for the current user.
func Session(validator SessionValidator, binder *CookieBinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := binder.Read(r)
			auth := &AuthContext{
				validator: validator,
				token:     token,
				hasToken:  ok,
			}
			ctx := context.WithValue(r.Context(), authContextKey, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the authenticated session and user for the request.
// Store failures are logged and reported as unauthenticated.
func CurrentUser(r *http.Request) domain.SessionValidationResult {
	auth, ok := r.Context().Value(authContextKey).(*AuthContext)
	if !ok {
		return domain.SessionValidationResult{}
	}

	result, err := auth.Get(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Error("session validation failed",
			"error", err,
			"path", r.URL.Path,
		)
		return domain.SessionValidationResult{}
	}
	return result
}

// RequireAuth redirects requests without a valid session to loginPath.
// A stale cookie is cleared on the way out.
func RequireAuth(binder *CookieBinder, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := CurrentUser(r)
			if !result.Authenticated() {
				clearStaleCookie(w, r, binder)
				status := http.StatusFound
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					status = http.StatusSeeOther
				}
				http.Redirect(w, r, loginPath, status)
				return
			}

			next.ServeHTTP(w, r.WithContext(withAuthenticated(r.Context(), result)))
		})
	}
}

// RequireAuthJSON answers 401 with a JSON body instead of redirecting.
func RequireAuthJSON(binder *CookieBinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := CurrentUser(r)
			if !result.Authenticated() {
				clearStaleCookie(w, r, binder)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Not authenticated"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(withAuthenticated(r.Context(), result)))
		})
	}
}

func clearStaleCookie(w http.ResponseWriter, r *http.Request, binder *CookieBinder) {
	if auth, ok := r.Context().Value(authContextKey).(*AuthContext); ok && auth.HasToken() {
		binder.Clear(w)
	}
}

func withAuthenticated(ctx context.Context, result domain.SessionValidationResult) context.Context {
	ctx = WithSession(ctx, result.Session)
	ctx = WithUser(ctx, result.User)
	ctx = WithUserID(ctx, result.User.ID)
	return observability.WithUserID(ctx, result.User.ID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(sessionKey).(*domain.Session)
	return session, ok
}

func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
