package handler

import (
	"errors"
	"net/http"

	"liftlog/internal/domain"
	"liftlog/internal/middleware"
	"liftlog/internal/observability"
	"liftlog/internal/security"
	"liftlog/internal/service"
)

// AccountHandler serves the signed-in user's account page and its actions.
// Every route here sits behind RequireAuth and CSRF.
type AccountHandler struct {
	authService *service.AuthService
	binder      *middleware.CookieBinder
	views       *Views
	csrf        *security.CSRFSigner
}

func NewAccountHandler(authService *service.AuthService, binder *middleware.CookieBinder, views *Views, csrf *security.CSRFSigner) *AccountHandler {
	return &AccountHandler{
		authService: authService,
		binder:      binder,
		views:       views,
		csrf:        csrf,
	}
}

func (h *AccountHandler) Account(w http.ResponseWriter, r *http.Request) {
	h.renderAccount(w, r, http.StatusOK, "", accountNotice(r))
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	current := r.PostFormValue("current_password")
	next := r.PostFormValue("new_password")
	if next != r.PostFormValue("confirm_password") {
		h.renderAccount(w, r, http.StatusBadRequest, "New passwords do not match", "")
		return
	}

	token, session, err := h.authService.ChangePassword(r.Context(), user.ID, current, next)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			h.renderAccount(w, r, http.StatusBadRequest, "Current password is incorrect", "")
		case errors.Is(err, domain.ErrInvalidInput):
			h.renderAccount(w, r, http.StatusBadRequest, "New password must be 8 to 72 characters", "")
		case errors.Is(err, domain.ErrUserNotFound):
			h.binder.Clear(w)
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
		default:
			observability.FromContext(r.Context()).Error("failed to change password", "error", err)
			h.views.RenderError(w, r, http.StatusInternalServerError, "We could not change your password right now. Please try again.")
		}
		return
	}

	// Every old session, this browser's included, is gone; bind the new one.
	h.binder.Set(w, token, session.ExpiresAt)
	http.Redirect(w, r, "/account?updated=password", http.StatusSeeOther)
}

// RevokeSessions signs the user out on every device, this one included.
func (h *AccountHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	if _, err := h.authService.InvalidateUserSessions(r.Context(), userID); err != nil {
		observability.FromContext(r.Context()).Error("failed to revoke sessions", "error", err)
		h.views.RenderError(w, r, http.StatusInternalServerError, "We could not sign you out everywhere. Please try again.")
		return
	}

	h.binder.Clear(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	err := h.authService.DeleteAccount(r.Context(), userID, r.PostFormValue("password"))
	switch {
	case err == nil, errors.Is(err, domain.ErrUserNotFound):
		h.binder.Clear(w)
		http.Redirect(w, r, registerPath, http.StatusSeeOther)
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.renderAccount(w, r, http.StatusBadRequest, "Password is incorrect", "")
	default:
		observability.FromContext(r.Context()).Error("failed to delete account", "error", err)
		h.views.RenderError(w, r, http.StatusInternalServerError, "We could not delete your account right now. Please try again.")
	}
}

func (h *AccountHandler) renderAccount(w http.ResponseWriter, r *http.Request, status int, errMsg, notice string) {
	user, _ := middleware.GetUser(r.Context())
	session, _ := middleware.GetSession(r.Context())

	sessions, err := h.authService.ListActiveSessions(r.Context(), user.ID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to list sessions", "error", err)
		h.views.RenderError(w, r, http.StatusInternalServerError, "We could not load your account right now. Please try again.")
		return
	}

	h.views.Render(w, r, status, pageAccount, PageData{
		Title:            "Account",
		Error:            errMsg,
		Notice:           notice,
		User:             user,
		CSRFToken:        h.csrf.Token(session.ID),
		Sessions:         sessions,
		SessionExpiresAt: session.ExpiresAt,
	})
}

func accountNotice(r *http.Request) string {
	if r.URL.Query().Get("updated") == "password" {
		return "Password changed. Other devices have been signed out."
	}
	return ""
}
