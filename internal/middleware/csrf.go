package middleware

import (
	"net/http"
	"strings"

	"liftlog/internal/observability"
	"liftlog/internal/security"
)

// CSRFFormField is the form field carrying the CSRF token.
const CSRFFormField = "csrf_token"

var csrfExemptPrefixes = []string{"/health", "/metrics"}

// CSRF rejects unsafe requests whose token does not match the current
// session. It must run after RequireAuth, which puts the session in the
// context. The token is read from the csrf_token form field, then the
// X-CSRF-Token header, then X-XSRF-Token.
func CSRF(signer *security.CSRFSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			session, ok := GetSession(r.Context())
			if !ok {
				http.Error(w, "Not authenticated", http.StatusUnauthorized)
				return
			}

			submitted := extractCSRFToken(r)
			switch {
			case submitted == "":
				logCSRFFailure(r, "missing token")
			case !signer.Verify(session.ID, submitted):
				logCSRFFailure(r, "invalid token")
			default:
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, prefix := range csrfExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.FormValue(CSRFFormField); token != "" {
		return token
	}
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

// logCSRFFailure records a rejected request. The user id comes from the
// request context; the submitted token is never logged.
func logCSRFFailure(r *http.Request, reason string) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
}
