package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

func TestDBEnforcerAllows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("admin-1", "identity:create_identity_provider").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enforcer := NewDBEnforcer(db)
	ctx := observability.WithPrincipalID(context.Background(), "admin-1")
	err = enforcer.Enforce(ctx, "identity:create_identity_provider", nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBEnforcerDenies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("user-1", "identity:delete_mapping").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	enforcer := NewDBEnforcer(db)
	ctx := observability.WithPrincipalID(context.Background(), "user-1")
	err = enforcer.Enforce(ctx, "identity:delete_mapping", nil)
	assert.True(t, errors.Is(err, ErrForbidden))

	var forbidden *ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, "identity:delete_mapping", forbidden.Action)
}

func TestDBEnforcerNoPrincipal(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	enforcer := NewDBEnforcer(db)
	err = enforcer.Enforce(context.Background(), "identity:list_mappings", nil)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestAllowAllAndDenyAll(t *testing.T) {
	assert.NoError(t, AllowAll{}.Enforce(context.Background(), "identity:anything", nil))
	assert.True(t, errors.Is(
		DenyAll{}.Enforce(context.Background(), "identity:anything", nil), ErrForbidden))
}
