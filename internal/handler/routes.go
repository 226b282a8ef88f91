package handler

import (
	"database/sql"
	"net/http"

	"liftlog/internal/middleware"
	"liftlog/internal/security"
	"liftlog/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	AuthService  *service.AuthService
	Binder       *middleware.CookieBinder
	Views        *Views
	CSRF         *security.CSRFSigner
	LoginLimiter *middleware.RateLimiter
	DB           *sql.DB
	// RequestLogging enables chi's access log. Tests leave it off.
	RequestLogging bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.AuthService, cfg.Binder, cfg.Views)
	accountHandler := NewAccountHandler(cfg.AuthService, cfg.Binder, cfg.Views, cfg.CSRF)
	workoutHandler := NewWorkoutHandler(cfg.Views, cfg.CSRF)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext())
	if cfg.RequestLogging {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.Session(cfg.AuthService, cfg.Binder))

	r.Get("/health", Health)
	if cfg.DB != nil {
		r.Get("/health/ready", Ready(cfg.DB))
	}
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		cfg.Views.RenderError(w, r, http.StatusNotFound, "Page not found")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, homePath, http.StatusFound)
	})
	r.Get(loginPath, authHandler.LoginPage)
	r.Get(registerPath, authHandler.RegisterPage)

	r.Group(func(r chi.Router) {
		if cfg.LoginLimiter != nil {
			r.Use(cfg.LoginLimiter.Middleware())
		}
		r.Post(loginPath, authHandler.Login)
		r.Post(registerPath, authHandler.Register)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.Binder, loginPath))
		r.Use(middleware.CSRF(cfg.CSRF))

		r.Post("/logout", authHandler.Logout)
		r.Get(homePath, workoutHandler.List)
		r.Get("/account", accountHandler.Account)
		r.Post("/account/password", accountHandler.ChangePassword)
		r.Post("/account/sessions/revoke", accountHandler.RevokeSessions)
		r.Post("/account/delete", accountHandler.DeleteAccount)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuthJSON(cfg.Binder))
		r.Get("/auth/me", Me)
	})

	return r
}
