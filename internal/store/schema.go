package store

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	TableDimPerson  = "dim_person"
	TableFactPeople = "fact_people"
)

const createDimPerson = `
CREATE TABLE IF NOT EXISTS dim_person (
	person_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	gender TEXT NOT NULL,
	city TEXT NOT NULL
);
`

const createFactPeople = `
CREATE TABLE IF NOT EXISTS fact_people (
	fact_id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id INTEGER,
	purchase_amount REAL,
	purchase_category TEXT,
	FOREIGN KEY(person_id) REFERENCES dim_person(person_id)
);
`

// Column describes one column as reported by SQLite.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	PK      bool   `json:"pk"`
}

// EnsureSchema creates dim_person and fact_people when absent.
// Existing tables and their rows are left untouched.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin schema transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createDimPerson); err != nil {
		return storageErr("create dim_person", err)
	}
	if _, err := tx.ExecContext(ctx, createFactPeople); err != nil {
		return storageErr("create fact_people", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit schema", err)
	}
	return nil
}

// Tables lists the user tables in the database, sorted by name.
func Tables(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, storageErr("list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr("scan table name", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tables", err)
	}
	return tables, nil
}

// Columns returns the column layout of table in declaration order.
func Columns(ctx context.Context, q Queryer, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, storageErr("describe "+table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, storageErr("scan column of "+table, err)
		}
		c.NotNull = notNull == 1
		c.PK = pk > 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("describe "+table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("describe %s: %w", table, ErrNotFound)
	}
	return cols, nil
}
