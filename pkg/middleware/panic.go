package middleware

import (
	"net/http"

	"github.com/bitechdev/CrudlSpec/pkg/logger"
)

const panicMiddlewareMethodName = "PanicMiddleware"

// PanicRecovery is a middleware that recovers from panics, logs the error,
// sends it to an error tracker, and returns a 500 Internal Server Error with
// the standard error payload shape.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				logger.HandlePanic(panicMiddlewareMethodName, rcv)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"success":false,"code":"InternalServerError","message":"Internal server error.","user_friendly_message":"Something went wrong on our side."}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
