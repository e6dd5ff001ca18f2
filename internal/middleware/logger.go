package middleware

import (
	"net/http"
	"time"

	"github.com/apex/log"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Logger 以结构化字段记录每个请求。
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			entry := log.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": chimw.GetReqID(r.Context()),
				"remote":     r.RemoteAddr,
			})
			switch {
			case ww.Status() >= 500:
				entry.Error("http.request")
			case ww.Status() >= 400:
				entry.Warn("http.request")
			default:
				entry.Info("http.request")
			}
		}()

		next.ServeHTTP(ww, r)
	})
}
