package handler

import (
	"net/http"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/middleware"
	"liftlog/internal/security"
)

// WorkoutHandler renders the protected workouts area.
type WorkoutHandler struct {
	views *Views
	csrf  *security.CSRFSigner
}

func NewWorkoutHandler(views *Views, csrf *security.CSRFSigner) *WorkoutHandler {
	return &WorkoutHandler{views: views, csrf: csrf}
}

func (h *WorkoutHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	session, _ := middleware.GetSession(r.Context())

	h.views.Render(w, r, http.StatusOK, pageWorkouts, PageData{
		Title:     "Workouts",
		User:      user,
		CSRFToken: h.csrf.Token(session.ID),
	})
}

// MeResponse is the body of GET /api/v1/auth/me.
type MeResponse struct {
	User             *domain.User `json:"user"`
	SessionExpiresAt time.Time    `json:"session_expires_at"`
}

// Me returns the signed-in user. It sits behind RequireAuthJSON.
func Me(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	session, _ := middleware.GetSession(r.Context())

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, MeResponse{
		User:             user,
		SessionExpiresAt: session.ExpiresAt,
	})
}
