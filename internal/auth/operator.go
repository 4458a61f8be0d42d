package auth

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const OperatorKey contextKey = "operator"

// HashKey returns the bcrypt hash to put in OPERATOR_KEY_HASH.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// BearerKey extracts the key from an "Authorization: Bearer <key>" header.
func BearerKey(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	key := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return key, key != ""
}

func IsOperator(ctx context.Context) bool {
	v, _ := ctx.Value(OperatorKey).(bool)
	return v
}

func ContextWithOperator(ctx context.Context) context.Context {
	return context.WithValue(ctx, OperatorKey, true)
}
