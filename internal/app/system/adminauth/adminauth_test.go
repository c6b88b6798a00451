// internal/app/system/adminauth/adminauth_test.go
package adminauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func protected(t *testing.T, keyHash string) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return Middleware(keyHash, zap.NewNop())(next)
}

func TestMiddlewareAcceptsValidKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	h := protected(t, string(hash))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer s3cret-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want the wrapped handler's 204", rec.Code)
	}
}

func TestMiddlewareRejectsBadKey(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	h := protected(t, string(hash))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	h := protected(t, string(hash))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsWhenUnconfigured(t *testing.T) {
	// An empty hash must fail closed, never open.
	h := protected(t, "")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
