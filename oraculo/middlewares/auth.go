package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"oraculo/oraculo/config"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserIDKey holds the caller's owner id as a string.
const UserIDKey contextKey = "user_id"

var ErrInvalidToken = errors.New("invalid token")

// OwnerFromToken verifies an HMAC-signed token and returns its user_id claim,
// which may be a string or a number.
func OwnerFromToken(secret, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	switch v := claims["user_id"].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", ErrInvalidToken
		}
		return v, nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	default:
		return "", ErrInvalidToken
	}
}

func AuthMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			parts := strings.Split(auth, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ownerID, err := OwnerFromToken(cfg.JWTSecret, parts[1])
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the id stored by AuthMiddleware.
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
