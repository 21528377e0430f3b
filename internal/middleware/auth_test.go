package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bpires/listd/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authedHandler(t *testing.T, gotID *auth.Identity) http.Handler {
	t.Helper()
	return RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			t.Error("no identity in context")
		}
		*gotID = id
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireAuthValidToken(t *testing.T) {
	var id auth.Identity
	h := authedHandler(t, &id)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"name": "Bruno",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if id.UserID != "user-1" || id.DisplayName != "Bruno" {
		t.Errorf("identity = %+v, want user-1 / Bruno", id)
	}
}

func TestRequireAuthTokenQueryParam(t *testing.T) {
	var id auth.Identity
	h := authedHandler(t, &id)

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-1"})

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if id.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", id.UserID)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without valid token")
	}))

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"malformed", "not-a-jwt"},
		{"wrong secret", signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "user-1"})},
		{"expired", signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no subject", signToken(t, testSecret, jwt.MapClaims{"name": "Bruno"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
