// Package middleware holds the HTTP middleware stack shared by every
// route: panic recovery with the standard error envelope and structured
// request logging.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/internal/apierr"
)

// ErrorResponse is the envelope written by Recovery.
type ErrorResponse = apierr.HTTPErrorResponse

// Recovery converts panics into 500 responses with the standard
// envelope instead of tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				var msg string
				if err, ok := rec.(error); ok {
					msg = fmt.Sprintf("panic: %v", err)
				} else {
					msg = fmt.Sprintf("panic: %v", rec)
				}
				apierr.Respond(w, r, http.StatusInternalServerError, apierr.CodeInternal, msg)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestLogger emits one structured log line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
