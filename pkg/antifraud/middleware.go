package antifraud

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/pkg/velocity"
)

// MiddlewareConfig controls which requests Middleware inspects.
type MiddlewareConfig struct {
	TrustProxy    bool
	IncludePaths  []string // empty means "all paths", subject to ExcludePaths
	ExcludePaths  []string
}

// Middleware wraps an http.Handler with the Gate's IP-side checks (ban,
// token bucket, velocity). It runs before authentication, so events are
// recorded with EventOther and no subject ID; path-specific handlers layer
// a subject-aware check on top once identity is known (e.g. pkg/invoice).
func Middleware(gate *Gate, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pathMatches(r.URL.Path, cfg.IncludePaths, cfg.ExcludePaths) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, cfg.TrustProxy)
			verdict := gate.Check(Event{
				Type: velocity.EventOther,
				IP:   ip,
				Path: r.URL.Path,
				UA:   r.UserAgent(),
			})
			if !verdict.Allowed {
				if verdict.RetryAfterSeconds > 0 {
					w.Header().Set("Retry-After", strconv.FormatInt(verdict.RetryAfterSeconds, 10))
				}
				status := http.StatusTooManyRequests
				if verdict.Reason == "ip_banned" || verdict.Reason == "velocity_hard_block" {
					status = http.StatusForbidden
				}
				httpserver.RespondError(w, r, status, verdict.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func pathMatches(path string, include, exclude []string) bool {
	for _, p := range exclude {
		if pathPrefixMatch(path, p) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if pathPrefixMatch(path, p) {
			return true
		}
	}
	return false
}

func pathPrefixMatch(path, pattern string) bool {
	pattern = strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(path, pattern)
}
