// Package observability provides structured logging and Prometheus metrics
// for the federation broker.
//
// The Logger wraps stdlib slog with a JSON handler and supports contextual
// fields (request id, principal id) carried through context.Context. Metrics
// cover the HTTP surface, registry operations, federated authentication
// outcomes, and cache behavior.
package observability
