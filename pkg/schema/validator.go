package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIDLength bounds resource identifiers so they fit the storage columns.
const MaxIDLength = 64

// MaxDescriptionLength bounds free-form description attributes.
const MaxDescriptionLength = 255

// FieldError reports a single invalid field value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result accumulates field errors from a validation pass.
type Result struct {
	Errors []*FieldError
}

// Valid reports whether the pass produced no errors.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the accumulated errors as a single error, or nil.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("invalid resource: %s", strings.Join(msgs, "; "))
}

// AddError records a field error.
func (r *Result) AddError(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &FieldError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// CheckID validates a caller-chosen resource identifier. Identifiers appear
// in URL paths so whitespace and path separators are rejected.
func (r *Result) CheckID(field, value string) {
	if value == "" {
		r.AddError(field, "is required")
		return
	}
	if len(value) > MaxIDLength {
		r.AddError(field, "exceeds maximum length of %d", MaxIDLength)
		return
	}
	if !idPattern.MatchString(value) {
		r.AddError(field, "may only contain letters, digits, '.', '_' and '-'")
	}
}

// CheckDescription validates an optional description attribute.
func (r *Result) CheckDescription(field, value string) {
	if len(value) > MaxDescriptionLength {
		r.AddError(field, "exceeds maximum length of %d", MaxDescriptionLength)
	}
}

// CheckRemoteIDs validates a remote identifier list. Entries must be
// non-empty and unique within the list.
func (r *Result) CheckRemoteIDs(field string, values []string) {
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		if v == "" {
			r.AddError(field, "entry %d is empty", i)
			continue
		}
		if _, dup := seen[v]; dup {
			r.AddError(field, "duplicate entry %q", v)
			continue
		}
		seen[v] = struct{}{}
	}
}

var urlPattern = regexp.MustCompile(`^https?://`)

// CheckURL validates a required http(s) URL attribute.
func (r *Result) CheckURL(field, value string) {
	if value == "" {
		r.AddError(field, "is required")
		return
	}
	if !urlPattern.MatchString(value) {
		r.AddError(field, "must be an http or https URL")
	}
}
