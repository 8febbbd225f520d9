package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protectedHandler(cfg AuthConfig) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return authMiddleware(cfg)(inner)
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	t.Parallel()

	h := protectedHandler(AuthConfig{BearerToken: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for wrong token", rec.Code)
	}
}

func TestAuthMiddleware_Basic(t *testing.T) {
	t.Parallel()

	h := protectedHandler(AuthConfig{BasicUser: "admin", BasicPass: "pass"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "pass")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for wrong password", rec.Code)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	t.Parallel()

	h := protectedHandler(AuthConfig{BearerToken: "secret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without header", rec.Code)
	}
}

func TestRouter_APINotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(&fakeCoordinator{})
	g.config.Auth = AuthConfig{}

	req := httptest.NewRequest(http.MethodGet, "/api/approvals", nil)
	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: API must not exist without auth", rec.Code)
	}
}
