package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/TariqKichawele/BrightData/internal/api/response"
)

// Recovery turns a handler panic into a 500. http.ErrAbortHandler is passed
// through so the server can drop the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}
			owner, _ := GetOwnerID(r)
			slog.Error("panic recovered",
				"error", err,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"owner_id", owner,
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
