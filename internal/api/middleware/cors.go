package middleware

import (
	"net/http"

	"auction-engine/pkg/logger"
)

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
	h.Set("Access-Control-Max-Age", "86400")
}

// CORS sets permissive CORS headers and answers preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header())

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORSWithLogging is CORS plus a debug line per request.
func CORSWithLogging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		cors := CORS(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("CORS request",
				"method", r.Method,
				"path", r.URL.Path,
				"origin", r.Header.Get("Origin"))
			cors.ServeHTTP(w, r)
		})
	}
}
