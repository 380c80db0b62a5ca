package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_GetConfig_WrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("database is locked")
	mock.ExpectQuery("SELECT (.+) FROM endpoint_configs WHERE endpoint_id = ?").
		WithArgs("hook1").
		WillReturnError(boom)

	_, err = New(db).GetConfig(context.Background(), "hook1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_InsertRequest_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO requests").WillReturnError(errors.New("disk I/O error"))

	req := sampleRequest("hook1")
	err = New(db).InsertRequest(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_DeleteRequest_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM requests WHERE id = ?").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := New(db).DeleteRequest(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
