package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

// ErrForbidden is returned when the caller is not allowed to perform the
// requested action.
var ErrForbidden = errors.New("forbidden")

// ForbiddenError carries the action that was denied.
type ForbiddenError struct {
	Action      string
	PrincipalID string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("principal %q is not authorized to perform %q", e.PrincipalID, e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Enforcer authorizes federation management actions.
type Enforcer interface {
	// Enforce returns nil if the principal on the context may perform the
	// action against the target attributes, and a ForbiddenError otherwise.
	Enforce(ctx context.Context, action string, target map[string]string) error
}

// DBEnforcer grants actions from role assignments stored in SQL. A principal
// may perform an action when one of its roles carries the action name or the
// wildcard "*".
type DBEnforcer struct {
	db *sql.DB
}

// NewDBEnforcer creates an enforcer backed by the given database.
func NewDBEnforcer(db *sql.DB) *DBEnforcer {
	return &DBEnforcer{db: db}
}

// Enforce implements Enforcer.
func (e *DBEnforcer) Enforce(ctx context.Context, action string, target map[string]string) error {
	principalID := observability.GetPrincipalID(ctx)
	if principalID == "" {
		return &ForbiddenError{Action: action}
	}

	query := `
		SELECT COUNT(*)
		FROM policy_grants g
		JOIN policy_role_assignments a ON a.role = g.role
		WHERE a.principal_id = $1 AND (g.action = $2 OR g.action = '*')`

	var count int
	if err := e.db.QueryRowContext(ctx, query, principalID, action).Scan(&count); err != nil {
		return fmt.Errorf("failed to evaluate policy for %q: %w", action, err)
	}
	if count == 0 {
		return &ForbiddenError{Action: action, PrincipalID: principalID}
	}
	return nil
}

// AllowAll permits every action. Used for deployments that delegate
// authorization to an upstream gateway, and in tests.
type AllowAll struct{}

// Enforce implements Enforcer.
func (AllowAll) Enforce(ctx context.Context, action string, target map[string]string) error {
	return nil
}

// DenyAll rejects every action.
type DenyAll struct{}

// Enforce implements Enforcer.
func (DenyAll) Enforce(ctx context.Context, action string, target map[string]string) error {
	return &ForbiddenError{Action: action, PrincipalID: observability.GetPrincipalID(ctx)}
}
