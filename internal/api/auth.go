package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are issued by the identity service. Subject is the acting user.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

var errUnauthorized = errors.New("api: missing or invalid bearer token")

func parseToken(raw string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.TenantID == "" || claims.Subject == "" {
		return nil, errors.New("token is missing tenant_id or sub")
	}
	return claims, nil
}

// Authenticate requires a valid HS256 bearer token and stores the caller's
// tenant and user on the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, r, errUnauthorized)
				return
			}
			claims, err := parseToken(strings.TrimPrefix(h, "Bearer "), secret)
			if err != nil {
				writeError(w, r, errUnauthorized)
				return
			}
			ctx := withPrincipal(r.Context(), Principal{TenantID: claims.TenantID, UserID: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
