package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorage marks every failure to reach or modify a SQLite file:
// open, SQL execution and constraint violations alike.
var ErrStorage = errors.New("storage access failed")

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the SQLite file at path and checks it is reachable.
// Foreign-key enforcement is left at the SQLite default (off).
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open "+path, err)
	}
	// one writer per file; keeps transactions and plain queries on the same connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("connect "+path, err)
	}
	return db, nil
}

// OpenReadOnly opens an existing SQLite file without write access.
// A missing file is reported as ErrNotFound and is never created.
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, storageErr("stat "+path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open "+path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("connect "+path, err)
	}
	return db, nil
}
