package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Logger пишет по строке на каждый обработанный запрос.
func Logger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Int("status", status),
				zap.Int("size", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			if status >= http.StatusInternalServerError {
				logger.Warn("request served", fields...)
				return
			}
			logger.Info("request served", fields...)
		})
	}
}
