package miniapp

import (
	"net/http"

	"github.com/wisbric/paygate/internal/httpserver"
)

// InitDataHeader is the header the mini-app sends its launch data in.
const InitDataHeader = "X-Telegram-Init-Data"

// Middleware verifies the platform-signed initData header and attaches the
// resulting Identity to the request context. Missing or invalid initData is
// rejected with 403 before the wrapped handler runs.
func Middleware(botToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				httpserver.RespondError(w, r, http.StatusForbidden, "signature")
				return
			}

			identity, err := Verify(initData, botToken)
			if err != nil {
				httpserver.RespondError(w, r, http.StatusForbidden, "signature")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
