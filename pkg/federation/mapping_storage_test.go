package federation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockMappingStorage(t *testing.T) (*MappingStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMappingStorage(db), mock
}

func validRules() []MappingRule {
	return []MappingRule{{
		Local:  []LocalAssignment{{User: &LocalUser{Name: "{0}"}}},
		Remote: []RemoteCondition{{Type: "X-attr"}},
	}}
}

func TestCreateMapping(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	mock.ExpectExec("INSERT INTO federation_mappings").
		WithArgs("m1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := storage.CreateMapping(context.Background(), &Mapping{ID: "m1", Rules: validRules()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMappingInvalidDocumentNeverTouchesStorage(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	err := storage.CreateMapping(context.Background(), &Mapping{
		ID: "m1",
		Rules: []MappingRule{{
			Local: []LocalAssignment{{User: &LocalUser{Name: "joe"}}},
		}},
	})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMappingDuplicate(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	mock.ExpectExec("INSERT INTO federation_mappings").
		WillReturnError(&pq.Error{Code: "23505"})

	err := storage.CreateMapping(context.Background(), &Mapping{ID: "m1", Rules: validRules()})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestGetMapping(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	rulesJSON, err := json.Marshal(validRules())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, rules").
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rules", "created_at", "updated_at"}).
			AddRow("m1", rulesJSON, time.Now(), time.Now()))

	mapping, err := storage.GetMapping(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", mapping.ID)
	require.Len(t, mapping.Rules, 1)
	assert.Equal(t, "X-attr", mapping.Rules[0].Remote[0].Type)
}

func TestGetMappingNotFound(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	mock.ExpectQuery("SELECT id, rules").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rules", "created_at", "updated_at"}))

	_, err := storage.GetMapping(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateMappingValidatesFirst(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	_, err := storage.UpdateMapping(context.Background(), "m1", nil)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMappingUnconditional(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	mock.ExpectExec("DELETE FROM federation_mappings").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, storage.DeleteMapping(context.Background(), "m1"))
}

func TestDeleteMappingNotFound(t *testing.T) {
	storage, mock := newMockMappingStorage(t)

	mock.ExpectExec("DELETE FROM federation_mappings").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := storage.DeleteMapping(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}
