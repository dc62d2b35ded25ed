// Package httpmiddleware provides the HTTP middleware shared by the API
// server: panic recovery, request identifiers, access logging, CORS and
// per-client rate limiting.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour. The alias
// keeps signatures compatible with chi's Use.
type Middleware = func(http.Handler) http.Handler
