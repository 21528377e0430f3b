package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bpires/listd/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

// RequireAuth validates the bearer token minted by the identity-provider
// integration (HS256, "sub" carries the user id, "name" the display name)
// and populates the request Identity. WebSocket clients may pass the token
// as a "token" query parameter instead of a header.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				unauthorized(w)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w)
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				unauthorized(w)
				return
			}
			name, _ := claims["name"].(string)

			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: sub, DisplayName: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
