package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatRepoWithMock(t *testing.T) (*EndpointStatRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewEndpointStatRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func TestEndpointStatRepo_Increment(t *testing.T) {
	repo, mock := newStatRepoWithMock(t)

	q := `(?s)^\s*INSERT\s+INTO\s+endpoint_stats.*ON\s+CONFLICT\s+\(endpoint,\s*method\).*call_count\s*=\s*endpoint_stats\.call_count\s*\+\s*1`
	mock.ExpectExec(q).
		WithArgs("/api/v1/admin/users/:id", "DELETE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Increment(context.Background(), "/api/v1/admin/users/:id", "DELETE")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointStatRepo_IncrementError(t *testing.T) {
	repo, mock := newStatRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+endpoint_stats`).
		WithArgs("/api/v1/auth/login", "POST").
		WillReturnError(errors.New("db down"))

	err := repo.Increment(context.Background(), "/api/v1/auth/login", "POST")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment endpoint stat")
	assert.Contains(t, err.Error(), "db down")
}

func TestEndpointStatRepo_List(t *testing.T) {
	repo, mock := newStatRepoWithMock(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"endpoint", "method", "call_count", "last_called_at"}).
		AddRow("/api/v1/lyrics/generate", "POST", int64(42), now).
		AddRow("/api/v1/auth/login", "POST", int64(7), now)

	mock.ExpectQuery(`(?s)SELECT\s+endpoint,\s*method,\s*call_count,\s*last_called_at\s+FROM\s+endpoint_stats\s+ORDER\s+BY\s+call_count\s+DESC`).
		WillReturnRows(rows)

	stats, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "/api/v1/lyrics/generate", stats[0].Endpoint)
	assert.Equal(t, int64(42), stats[0].CallCount)
	assert.Equal(t, "POST", stats[1].Method)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointStatRepo_ListEmpty(t *testing.T) {
	repo, mock := newStatRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+endpoint_stats`).
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "method", "call_count", "last_called_at"}))

	stats, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}
