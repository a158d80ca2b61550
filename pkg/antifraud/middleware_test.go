package antifraud

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wisbric/paygate/pkg/ipguard"
	"github.com/wisbric/paygate/pkg/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewarePassesAllowedRequest(t *testing.T) {
	g := New(permissiveConfig(), ipguard.NewStore(), ratelimit.NewMemoryStore(), testLogger())
	mw := Middleware(g, MiddlewareConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "2.2.2.2:1234"
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareBlocksBannedIP(t *testing.T) {
	ipg := ipguard.NewStore()
	ipg.Ban("3.3.3.3", 0, "abuse")
	g := New(permissiveConfig(), ipg, ratelimit.NewMemoryStore(), testLogger())
	mw := Middleware(g, MiddlewareConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "3.3.3.3:1234"
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareSkipsExcludedPath(t *testing.T) {
	ipg := ipguard.NewStore()
	ipg.Ban("4.4.4.4", 0, "abuse")
	g := New(permissiveConfig(), ipg, ratelimit.NewMemoryStore(), testLogger())
	mw := Middleware(g, MiddlewareConfig{ExcludePaths: []string{"/healthz"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "4.4.4.4:1234"
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (excluded path bypasses gate)", rec.Code)
	}
}

func TestMiddlewareOnlyAppliesToIncludedPaths(t *testing.T) {
	ipg := ipguard.NewStore()
	ipg.Ban("5.5.5.5", 0, "abuse")
	g := New(permissiveConfig(), ipg, ratelimit.NewMemoryStore(), testLogger())
	mw := Middleware(g, MiddlewareConfig{IncludePaths: []string{"/api/miniapp/"}})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.RemoteAddr = "5.5.5.5:1234"
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (path not in include list)", rec.Code)
	}
}

func TestClientIPHonorsTrustProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(req, false); got != "10.0.0.1" {
		t.Fatalf("ClientIP(trustProxy=false) = %q, want 10.0.0.1", got)
	}
	if got := ClientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("ClientIP(trustProxy=true) = %q, want 203.0.113.9", got)
	}
}
