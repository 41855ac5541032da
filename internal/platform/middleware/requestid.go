package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"civicdesk/pkg/requestcontext"
)

// RequestID assigns each request a correlation ID, echoes it in the response
// header, and pins the request clock so every write in the request sees the
// same instant.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
