package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/middleware"
	"liftlog/internal/security"
	"liftlog/internal/service"
	"liftlog/internal/testutil"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testCSRFSecret = "handler-test-secret-with-enough-length"

// fakeClock lets tests move the auth service's notion of now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	router   http.Handler
	users    *testutil.MockUserRepository
	sessions *testutil.MockSessionRepository
	auth     *service.AuthService
	csrf     *security.CSRFSigner
	clock    *fakeClock
	user     *domain.UserCredentials
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	views, err := NewViews()
	require.NoError(t, err)

	users, sessions := testutil.NewMockRepositories()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	auth := service.NewAuthService(users, sessions,
		service.WithClock(clock.Now),
		service.WithBcryptCost(bcrypt.MinCost),
	)
	csrf := security.NewCSRFSigner(testCSRFSecret)

	user := testutil.NewTestCredentials(testutil.WithUsername("alice"), testutil.WithEmail("alice@example.com"))
	users.Add(user)

	return &testApp{
		router: NewRouter(RouterConfig{
			AuthService: auth,
			Binder:      middleware.NewCookieBinder(false),
			Views:       views,
			CSRF:        csrf,
		}),
		users:    users,
		sessions: sessions,
		auth:     auth,
		csrf:     csrf,
		clock:    clock,
		user:     user,
	}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// login signs the fixture user in and returns the issued token.
func (a *testApp) login(t *testing.T) string {
	t.Helper()
	w := a.do(formRequest(http.MethodPost, "/login", url.Values{
		"username": {a.user.Username},
		"password": {testutil.TestPassword},
	}, ""))
	testutil.AssertStatusCode(t, w, http.StatusSeeOther)

	cookie := testutil.AssertCookie(t, w, middleware.SessionCookieName)
	require.NotNil(t, cookie)
	return cookie.Value
}

// csrfFor returns the CSRF token bound to the session behind token.
func (a *testApp) csrfFor(token string) string {
	return a.csrf.Token(security.DeriveSessionID(token))
}

func formRequest(method, target string, form url.Values, token string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	return req
}

func getRequest(target, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	return req
}
