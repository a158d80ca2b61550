package admin

import (
	"net/http"

	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/pkg/cryptoutil"
)

// AdminTokenHeader is the header carrying the admin token.
const AdminTokenHeader = "X-Admin-Token"

// Middleware gates every request behind an exact, constant-time comparison
// against adminToken: missing header is 401, mismatch is 403.
func Middleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				httpserver.RespondError(w, r, http.StatusUnauthorized, "missing_token")
				return
			}
			if !cryptoutil.ConstantTimeEqual([]byte(got), []byte(adminToken)) {
				httpserver.RespondError(w, r, http.StatusForbidden, "invalid_token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
