package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// ServiceAuthMiddleware guards the ledger endpoints with a shared-secret
// HMAC bearer token issued to trusted callers (the gateway, the dashboard
// backend). The ledger never authenticates end users; the identity layer
// upstream already resolved the principal.
func ServiceAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractTokenFromHeader(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := verifyServiceToken(tokenString, secret); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func verifyServiceToken(tokenString, secret string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})

	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	return nil
}

func extractTokenFromHeader(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if len(strings.Split(bearerToken, " ")) == 2 {
		return strings.Split(bearerToken, " ")[1]
	}
	return ""
}
