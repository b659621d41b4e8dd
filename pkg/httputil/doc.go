// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing, plus the middleware
// chain used by the federation API server.
package httputil
