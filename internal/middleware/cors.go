package middleware

import (
	"net/http"
	"strings"
)

type originSet struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginSet(allowedOrigins []string) originSet {
	set := originSet{allowed: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			set.allowAll = true
		}
		set.allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return set
}

func (s originSet) contains(origin string) bool {
	if s.allowAll {
		return true
	}
	_, ok := s.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// OriginAllowed returns a websocket CheckOrigin func using the same allow list as CORS.
// Requests without an Origin header (non-browser clients) are accepted.
func OriginAllowed(allowedOrigins []string) func(*http.Request) bool {
	set := newOriginSet(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set.contains(origin)
	}
}

// CORS 允许配置中的来源跨域访问，"*" 表示任意来源。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	set := newOriginSet(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && set.contains(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
