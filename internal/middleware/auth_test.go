package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func issueCookie(t *testing.T, m *AuthMiddleware, userID int64) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	m.SetAuthCookie(w, userID)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}
	return cookies[0]
}

func serveWithCookie(m *AuthMiddleware, cookie *http.Cookie, next http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/listings/1/bids", nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	m.RequireUser(next).ServeHTTP(w, r)
	return w
}

func TestRequireUser_ValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
	})

	serveWithCookie(m, issueCookie(t, m, 42), next)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestRequireUser_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	valid := issueCookie(t, m, 42)

	tampered := *valid
	tampered.Value = "43" + strings.TrimPrefix(valid.Value, "42")

	foreign := issueCookie(t, NewAuthMiddleware("other-secret"), 42)

	expired := NewAuthMiddleware("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * authCookieTTL) }
	stale := issueCookie(t, expired, 42)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie", cookie: nil},
		{name: "tampered user id", cookie: &tampered},
		{name: "signed with another key", cookie: foreign},
		{name: "expired", cookie: stale},
		{name: "garbage", cookie: &http.Cookie{Name: authCookieName, Value: "not-a-token"}},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithCookie(m, tt.cookie, next)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestNewAuthMiddleware_EmptySecret(t *testing.T) {
	a := NewAuthMiddleware("")
	b := NewAuthMiddleware("")

	cookie := issueCookie(t, a, 7)
	if _, ok := b.parseToken(cookie.Value); ok {
		t.Fatalf("random keys must differ between instances")
	}
	if id, ok := a.parseToken(cookie.Value); !ok || id != 7 {
		t.Fatalf("parseToken = %d, %v; want 7, true", id, ok)
	}
}
