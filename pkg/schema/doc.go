// Package schema provides field-level validation helpers for federation
// resources. Handlers and storage layers use these to reject malformed
// identifiers and attribute values before they reach the database.
package schema
