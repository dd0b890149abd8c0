// Package httpmiddleware provides net/http middleware shared by the API
// server: panic recovery, request IDs, request-scoped logging, CORS, rate
// limiting, and OpenTelemetry instrumentation.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware becomes the outermost
// layer, so the call order in Wrap reads top-down like the request path.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
