package handler

import (
	"errors"
	"net/http"
	"strings"

	"liftlog/internal/domain"
	"liftlog/internal/middleware"
	"liftlog/internal/observability"
	"liftlog/internal/service"
)

const (
	loginPath    = "/login"
	registerPath = "/register"
	homePath     = "/workouts"
)

// AuthHandler handles sign-in, sign-up and sign-out pages.
type AuthHandler struct {
	authService *service.AuthService
	binder      *middleware.CookieBinder
	views       *Views
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *service.AuthService, binder *middleware.CookieBinder, views *Views) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		binder:      binder,
		views:       views,
	}
}

// LoginPage renders the sign-in form, or sends signed-in users home.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.CurrentUser(r).Authenticated() {
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}
	h.views.Render(w, r, http.StatusOK, pageLogin, PageData{Title: "Sign in"})
}

// Login handles the sign-in form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.views.Render(w, r, http.StatusBadRequest, pageLogin, PageData{
			Title: "Sign in",
			Error: "Invalid form submission",
		})
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	token, session, user, err := h.authService.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.views.Render(w, r, http.StatusUnauthorized, pageLogin, PageData{
				Title:    "Sign in",
				Error:    "Invalid username or password",
				Username: username,
			})
			return
		}
		observability.FromContext(r.Context()).Error("login failed", "error", err)
		h.views.RenderError(w, r, http.StatusInternalServerError, "We could not sign you in right now. Please try again.")
		return
	}

	h.replaceSession(w, r, token, session)
	observability.FromContext(r.Context()).Info("user signed in", "user_id", user.ID)
	http.Redirect(w, r, homePath, http.StatusSeeOther)
}

// RegisterPage renders the sign-up form, or sends signed-in users home.
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if middleware.CurrentUser(r).Authenticated() {
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}
	h.views.Render(w, r, http.StatusOK, pageRegister, PageData{Title: "Create account"})
}

// Register creates the account and signs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.views.Render(w, r, http.StatusBadRequest, pageRegister, PageData{
			Title: "Create account",
			Error: "Invalid form submission",
		})
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	user, err := h.authService.Register(r.Context(), username, email, password)
	if err != nil {
		data := PageData{Title: "Create account", Username: username, Email: email}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
			data.Error = "Usernames are 3-50 letters, digits or underscores, and passwords are 8-72 characters"
		case errors.Is(err, domain.ErrUsernameExists):
			status = http.StatusConflict
			data.Error = "That username is taken"
		case errors.Is(err, domain.ErrEmailExists):
			status = http.StatusConflict
			data.Error = "An account with that email already exists"
		default:
			observability.FromContext(r.Context()).Error("registration failed", "error", err)
			h.views.RenderError(w, r, status, "We could not create your account right now. Please try again.")
			return
		}
		h.views.Render(w, r, status, pageRegister, data)
		return
	}

	token, session, err := h.authService.CreateSession(r.Context(), user.ID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to open session after registration",
			"user_id", user.ID,
			"error", err,
		)
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}

	h.replaceSession(w, r, token, session)
	http.Redirect(w, r, homePath, http.StatusSeeOther)
}

// replaceSession binds the new session to the browser. A session the browser
// was already carrying is deleted first so overwriting the cookie does not
// leave it live in the store.
func (h *AuthHandler) replaceSession(w http.ResponseWriter, r *http.Request, token string, session *domain.Session) {
	if prev := middleware.CurrentUser(r); prev.Authenticated() && prev.Session.ID != session.ID {
		if err := h.authService.InvalidateSession(r.Context(), prev.Session.ID); err != nil {
			observability.FromContext(r.Context()).Warn("failed to delete replaced session",
				"user_id", prev.Session.UserID,
				"error", err,
			)
		}
	}
	h.binder.Set(w, token, session.ExpiresAt)
}

// Logout deletes the current session and clears the cookie. The cookie is
// cleared even if the delete fails; the sweeper removes the row once it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if ok {
		if err := h.authService.InvalidateSession(r.Context(), session.ID); err != nil {
			observability.FromContext(r.Context()).Error("failed to delete session on logout", "error", err)
		}
	}

	h.binder.Clear(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}
