// Package middleware provides HTTP middleware for the EventFlow ingress:
// correlation IDs, panic recovery, producer authentication, rate limiting,
// request logging and CORS.
package middleware

import "net/http"

// Option wraps a handler with one middleware layer.
type Option func(http.Handler) http.Handler

// Apply wraps handler with the given middleware, outermost first: the first
// option sees the request before any of the others.
//
//	handler := middleware.Apply(mux,
//	    middleware.CorrelationID(),
//	    middleware.Recovery(logger),
//	    middleware.AuthenticateProducer(store, logger),
//	    middleware.RateLimit(limiter, logger),
//	    middleware.RequestLogger(logger),
//	    middleware.CORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	// Wrap back to front so the first option ends up outermost.
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// passthrough is the no-op option used when a middleware is not configured.
func passthrough(next http.Handler) http.Handler {
	return next
}
