// internal/app/system/adminauth/adminauth.go

// Package adminauth guards operator endpoints with a bearer key compared
// against a bcrypt hash from configuration, so the plaintext key never
// lives in config or logs.
package adminauth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Middleware returns a middleware that requires a valid admin bearer key.
func Middleware(keyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r)
			if !ok || keyHash == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				logger.Warn("rejected admin request with bad key",
					zap.String("remote_addr", r.RemoteAddr))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return token, token != ""
}
