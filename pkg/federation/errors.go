package federation

import (
	"errors"
	"fmt"
)

// Sentinel errors for taxonomy checks with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrUpstreamAuth        = errors.New("upstream authentication failed")
)

// NotFoundError reports an unknown resource id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a duplicate id or a colliding remote id.
type ConflictError struct {
	Resource string
	ID       string
	Detail   string
}

func (e *ConflictError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %q: %s", e.Resource, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s %q already exists", e.Resource, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError reports a structurally invalid payload. For mapping
// documents Detail names the offending rule or clause.
type ValidationError struct {
	Resource string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Resource, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MetadataError reports that the configured metadata document could not be
// read. It is distinct from a generic I/O error so callers can present the
// condition explicitly.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata file %s unavailable: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return ErrMetadataUnavailable }

// UpstreamAuthError reports that the token pipeline could not be reached or
// errored before producing a response. Pipeline responses with failure status
// codes are not errors; they are relayed verbatim.
type UpstreamAuthError struct {
	Err error
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("token pipeline request failed: %v", e.Err)
}

func (e *UpstreamAuthError) Unwrap() error { return ErrUpstreamAuth }
