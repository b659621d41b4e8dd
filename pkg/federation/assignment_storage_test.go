package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAssignmentStorage(t *testing.T) (*AssignmentStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAssignmentStorage(db), mock
}

func TestProjectsForUser(t *testing.T) {
	storage, mock := newMockAssignmentStorage(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT t.id, t.name").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "domain_id", "enabled"}).
			AddRow("p1", "alpha", "d1", true).
			AddRow("p2", "beta", "d1", true))

	projects, err := storage.ProjectsForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "p1", projects[0].ID)
	assert.Equal(t, "d1", projects[0].DomainID)
}

func TestProjectsForUnknownUser(t *testing.T) {
	storage, mock := newMockAssignmentStorage(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := storage.ProjectsForUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "user", notFound.Resource)
}

func TestProjectsForGroupsEmptySet(t *testing.T) {
	storage, mock := newMockAssignmentStorage(t)

	projects, err := storage.ProjectsForGroups(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectsForGroups(t *testing.T) {
	storage, mock := newMockAssignmentStorage(t)

	mock.ExpectQuery("SELECT DISTINCT t.id, t.name").
		WithArgs("g1", "g2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "domain_id", "enabled"}).
			AddRow("p3", "gamma", "d1", true))

	projects, err := storage.ProjectsForGroups(context.Background(), []string{"g1", "g2"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p3", projects[0].ID)
}

func TestDomainsForUser(t *testing.T) {
	storage, mock := newMockAssignmentStorage(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT t.id, t.name").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "domain_id", "enabled"}).
			AddRow("d1", "corp", "", true))

	domains, err := storage.DomainsForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "d1", domains[0].ID)
}
