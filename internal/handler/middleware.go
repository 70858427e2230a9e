package handler

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

func LoggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start))
	})
}

func RecoverMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", "error", err, "path", r.URL.Path)
				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.RecoverWithContext(r.Context(), err)
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Wrap applies, from the outside in: tracing, Sentry hub, logging, recovery
// and authentication.
func (h *Handler) Wrap(next http.Handler) http.Handler {
	wrapped := h.AuthMiddleware(next)
	wrapped = RecoverMiddleware(h.logger, wrapped)
	wrapped = LoggingMiddleware(h.logger, wrapped)
	wrapped = sentryhttp.New(sentryhttp.Options{Repanic: false}).Handle(wrapped)
	return otelhttp.NewHandler(wrapped, "lighthouse-report")
}
