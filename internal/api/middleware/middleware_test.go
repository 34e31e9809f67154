package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthRejectsMissingUserID(t *testing.T) {
	called := false
	h := Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if called {
		t.Error("next handler ran without a user ID")
	}
}

func TestAuthStoresUserID(t *testing.T) {
	var got string
	h := Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserIDFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	r.Header.Set("X-User-ID", "u1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "u1" {
		t.Errorf("user ID = %q, want u1", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler ran for preflight")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/transactions", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if allow := w.Header().Get("Access-Control-Allow-Headers"); allow == "" {
		t.Error("missing Access-Control-Allow-Headers")
	}
}
