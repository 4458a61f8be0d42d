package handler

import (
	"net/http"

	"github.com/YannKr/countersignal/internal/auth"
)

// requireOperator checks the bearer key against OPERATOR_KEY_HASH. With no
// hash configured every caller is an operator.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Cfg.OperatorKeyHash != "" {
			key, ok := auth.BearerKey(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="countersignal"`)
				renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator key required")
				return
			}
			if !auth.CheckKey(h.Cfg.OperatorKeyHash, key) {
				renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid operator key")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithOperator(r.Context())))
	})
}

func (h *Handler) apiRateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Get(clientIP(r)).Allow() {
				renderJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
