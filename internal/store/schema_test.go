package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "star.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureSchema_CreatesBothTables(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	require.NoError(t, EnsureSchema(ctx, db))

	tables, err := Tables(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{TableDimPerson, TableFactPeople}, tables)

	cols, err := Columns(ctx, db, TableDimPerson)
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "person_id", Type: "INTEGER", NotNull: false, PK: true},
		{Name: "name", Type: "TEXT", NotNull: true},
		{Name: "age", Type: "INTEGER", NotNull: true},
		{Name: "gender", Type: "TEXT", NotNull: true},
		{Name: "city", Type: "TEXT", NotNull: true},
	}, cols)

	cols, err = Columns(ctx, db, TableFactPeople)
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "fact_id", Type: "INTEGER", PK: true},
		{Name: "person_id", Type: "INTEGER"},
		{Name: "purchase_amount", Type: "REAL"},
		{Name: "purchase_category", Type: "TEXT"},
	}, cols)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	require.NoError(t, EnsureSchema(ctx, db))
	before, err := Columns(ctx, db, TableFactPeople)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO dim_person (name, age, gender, city) VALUES ('Eve', 30, 'Female', 'Austin')`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, EnsureSchema(ctx, db))

	tables, err := Tables(ctx, db)
	require.NoError(t, err)
	assert.Len(t, tables, 2)

	after, err := Columns(ctx, db, TableFactPeople)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	n, err := CountRows(ctx, db, TableDimPerson)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing rows must survive a second schema pass")
}

func TestColumns_MissingTable(t *testing.T) {
	_, err := Columns(context.Background(), openTemp(t), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_UnreachablePath(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing-dir", "star.db"))
	require.ErrorIs(t, err, ErrStorage)
}

func TestOpenReadOnly_MissingFileIsNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "star.db")

	_, err := OpenReadOnly(context.Background(), path)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenReadOnly_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "star.db")

	rw, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, rw))
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(ctx, path)
	require.NoError(t, err)
	defer ro.Close()

	tables, err := Tables(ctx, ro)
	require.NoError(t, err)
	assert.Equal(t, []string{TableDimPerson, TableFactPeople}, tables)

	_, err = ro.ExecContext(ctx, `INSERT INTO dim_person (name, age, gender, city) VALUES ('Eve', 30, 'Female', 'Austin')`)
	assert.Error(t, err)
}
