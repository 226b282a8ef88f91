package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"liftlog/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRequestContext_UsesChiRequestID(t *testing.T) {
	var chiID, loggedID string
	handler := chimiddleware.RequestID(RequestContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chiID = chimiddleware.GetReqID(r.Context())
		loggedID = observability.RequestIDFromContext(r.Context())
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, chiID)
	assert.Equal(t, chiID, loggedID)
	assert.Equal(t, chiID, w.Header().Get(chimiddleware.RequestIDHeader))
}

func TestRequestContext_FallbackID(t *testing.T) {
	var loggedID string
	handler := RequestContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedID = observability.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, loggedID, 36)
	assert.Equal(t, loggedID, w.Header().Get(chimiddleware.RequestIDHeader))
}
