package fixture

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect string, tables []string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, dialect, tables), mock
}

var blogFixture = &Fixture{Name: "many-posts", Collections: []Collection{
	{Name: "comments", Records: []Record{{"_id": "c1", "postId": "p1"}}},
	{Name: "posts", Records: []Record{{"_id": "p1", "tags": []interface{}{"x"}}}},
}}

func TestSQLStoreLoad(t *testing.T) {
	store, mock := newMockStore(t, "postgres", []string{"users", "posts", "comments"})

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "comments"`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM "posts"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "posts" ("_id", "tags") VALUES ($1, $2)`).
		WithArgs("p1", `["x"]`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "comments" ("_id", "postId") VALUES ($1, $2)`).
		WithArgs("c1", "p1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Load(context.Background(), blogFixture))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadClearsFixtureOnlyTables(t *testing.T) {
	store, mock := newMockStore(t, "mysql", []string{"users"})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `posts`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `comments`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `users`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `comments` (`_id`, `postId`) VALUES (?, ?)").
		WithArgs("c1", "p1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `posts` (`_id`, `tags`) VALUES (?, ?)").
		WithArgs("p1", `["x"]`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Load(context.Background(), blogFixture))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadRollsBackOnInsertError(t *testing.T) {
	store, mock := newMockStore(t, "postgres", []string{"posts", "comments"})

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "comments"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "posts"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "posts" ("_id", "tags") VALUES ($1, $2)`).
		WithArgs("p1", `["x"]`).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := store.Load(context.Background(), blogFixture)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert record 0 into posts")
	assert.Contains(t, err.Error(), "duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadRollsBackOnEmptyRecord(t *testing.T) {
	store, mock := newMockStore(t, "postgres", nil)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "posts"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Load(context.Background(), &Fixture{Name: "bad", Collections: []Collection{
		{Name: "posts", Records: []Record{{}}},
	}})
	assert.ErrorContains(t, err, "record has no fields")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreClear(t *testing.T) {
	store, mock := newMockStore(t, "sqlserver", []string{"posts", "comments"})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM [comments]").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM [posts]").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := store.Clear(context.Background())
	assert.ErrorContains(t, err, "failed to clear table posts: locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreBeginAndCommitErrors(t *testing.T) {
	store, mock := newMockStore(t, "postgres", []string{"posts"})

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))
	assert.ErrorContains(t, store.Clear(context.Background()), "failed to begin transaction")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "posts"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
	assert.ErrorContains(t, store.Clear(context.Background()), "failed to commit transaction")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSnapshot(t *testing.T) {
	store, mock := newMockStore(t, "postgres", []string{"posts"})

	mock.ExpectQuery(`SELECT * FROM "posts" ORDER BY 1`).WillReturnRows(
		sqlmock.NewRows([]string{"_id", "title", "tags"}).
			AddRow([]byte("p1"), []byte("hello"), []byte(`["x"]`)).
			AddRow([]byte("p2"), nil, []byte(`[]`)),
	)

	f, err := store.Snapshot(context.Background(), "captured")
	require.NoError(t, err)
	assert.Equal(t, "captured", f.Name)
	assert.Equal(t, []Record{
		{"_id": "p1", "title": "hello", "tags": []interface{}{"x"}},
		{"_id": "p2", "title": nil, "tags": []interface{}{}},
	}, f.Collection("posts"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
