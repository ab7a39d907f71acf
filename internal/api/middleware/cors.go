package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig abstracts the CORS settings owned by the api package so this
// package does not have to import it.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS answers preflight requests and stamps the Access-Control headers on
// every response.
func CORS(config CORSConfig) Option {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeCORSHeaders(w, r, config)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, r *http.Request, config CORSConfig) {
	headers := w.Header()

	if origin := allowedOrigin(r, config.GetAllowedOrigins()); origin != "" {
		headers.Set("Access-Control-Allow-Origin", origin)
	}

	if methods := config.GetAllowedMethods(); len(methods) > 0 {
		headers.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	}

	if allowed := config.GetAllowedHeaders(); len(allowed) > 0 {
		headers.Set("Access-Control-Allow-Headers", strings.Join(allowed, ", "))
	}

	if maxAge := config.GetMaxAge(); maxAge > 0 {
		headers.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	}
}

// allowedOrigin resolves the Access-Control-Allow-Origin value for a request,
// or "" when the origin is not allowed.
func allowedOrigin(r *http.Request, allowed []string) string {
	if len(allowed) == 0 {
		return ""
	}

	if len(allowed) == 1 && allowed[0] == "*" {
		return "*"
	}

	if origin := r.Header.Get("Origin"); slices.Contains(allowed, origin) {
		return origin
	}

	return ""
}
