package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rapidresolve/engine/internal/api/response"
)

// Recovery converts handler panics into a generic 500 so customers never see
// internals. http.ErrAbortHandler is re-raised; the server uses it to drop
// connections mid-stream and it carries no information worth logging.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"client", clientIP(r),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
