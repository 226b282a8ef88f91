package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertNotNil fails the test if v is nil or a nil pointer, map, slice or interface.
func AssertNotNil(t *testing.T, v interface{}) {
	t.Helper()
	if v == nil {
		t.Fatal("expected non-nil value, got nil")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		if rv.IsNil() {
			t.Fatal("expected non-nil value, got nil")
		}
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func AssertContains(t *testing.T, s, substring string) {
	t.Helper()
	if !strings.Contains(s, substring) {
		t.Errorf("expected %q to contain %q", s, substring)
	}
}

func AssertNotContains(t *testing.T, s, substring string) {
	t.Helper()
	if strings.Contains(s, substring) {
		t.Errorf("expected %q not to contain %q", s, substring)
	}
}

// HTTP Response Helpers

func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("status code: got %d, want %d. Body: %s", w.Code, expected, w.Body.String())
	}
}

// AssertJSONResponse fails if the response is not valid JSON or status doesn't match
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertJSONError fails unless the response has the given status and the body
// carries expectedMsg.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)
	AssertHeader(t, w, "Content-Type", "application/json")
	AssertContains(t, w.Body.String(), expectedMsg)
}

func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	if got := w.Header().Get(key); got != expected {
		t.Errorf("header %q: got %q, want %q", key, got, expected)
	}
}

func AssertHeaderContains(t *testing.T, w *httptest.ResponseRecorder, key, substring string) {
	t.Helper()
	if got := w.Header().Get(key); !strings.Contains(got, substring) {
		t.Errorf("header %q: expected to contain %q, got %q", key, substring, got)
	}
}

// Cookie Helpers

// AssertCookie returns the cookie set under name, failing if there is none.
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Errorf("expected cookie %q not found", name)
	return nil
}

// AssertNoCookie fails if the response sets a live cookie under name.
// A clearing cookie (empty value or negative MaxAge) does not count.
func AssertNoCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name && c.Value != "" && c.MaxAge >= 0 {
			t.Errorf("unexpected cookie %q found with value %q", name, c.Value)
		}
	}
}

// AssertCookieCleared fails unless the response tells the browser to drop
// the cookie: empty value and Max-Age=0 on the wire.
func AssertCookieCleared(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := AssertCookie(t, w, name)
	if c == nil {
		return
	}
	if c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("cookie %q not cleared: value %q, max-age %d", name, c.Value, c.MaxAge)
	}
}

// Request Helpers

// NewRequestWithCookie creates a request carrying a single cookie.
func NewRequestWithCookie(t *testing.T, method, url, cookieName, cookieValue string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	req.AddCookie(&http.Cookie{
		Name:  cookieName,
		Value: cookieValue,
	})
	return req
}


// DecodeJSON unmarshals the response body into T. The recorder's body is
// left unread so later assertions can still inspect it.
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}
