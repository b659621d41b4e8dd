// Package policy decides whether a caller may perform a federation
// management action. Handlers pass a named action such as
// "identity:create_identity_provider" together with the target resource
// attributes; the enforcer answers allow or deny.
package policy
