package middleware

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie that carries the raw session token.
const SessionCookieName = "auth-session"

// CookieBinder moves session tokens between the response and the client's cookie jar.
type CookieBinder struct {
	secure bool
}

// NewCookieBinder returns a binder. secure controls the cookie's Secure attribute.
func NewCookieBinder(secure bool) *CookieBinder {
	return &CookieBinder{secure: secure}
}

// Set stores token in the session cookie until expiresAt.
func (b *CookieBinder) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, b.cookie(token, expiresAt, 0))
}

// Clear tells the client to drop the session cookie immediately.
func (b *CookieBinder) Clear(w http.ResponseWriter) {
	// MaxAge < 0 is written as "Max-Age=0"
	http.SetCookie(w, b.cookie("", time.Time{}, -1))
}

// Read returns the token from the request's session cookie, if any.
func (b *CookieBinder) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (b *CookieBinder) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
