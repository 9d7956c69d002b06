package store

import (
	"context"
	"database/sql"
	"fmt"

	"go-star-pipeline/internal/model"
)

// AppendPeople inserts people into dim_person. Rows are always appended;
// identities come from the table's AUTOINCREMENT sequence.
func AppendPeople(ctx context.Context, tx *sql.Tx, people []model.Person) (int, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dim_person (name, age, gender, city) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, storageErr("prepare dim_person insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range people {
		if _, err := stmt.ExecContext(ctx, p.Name, p.Age, p.Gender, p.City); err != nil {
			return inserted, storageErr(fmt.Sprintf("insert person %q", p.Name), err)
		}
		inserted++
	}
	return inserted, nil
}

// AppendPurchases inserts facts into fact_people as given. person_id is not
// checked against dim_person.
func AppendPurchases(ctx context.Context, tx *sql.Tx, facts []model.Purchase) (int, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fact_people (person_id, purchase_amount, purchase_category) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, storageErr("prepare fact_people insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, f.PersonID, f.Amount, f.Category); err != nil {
			return inserted, storageErr(fmt.Sprintf("insert purchase for person %d", f.PersonID), err)
		}
		inserted++
	}
	return inserted, nil
}

// ListPeople returns dim_person ordered by person_id.
func ListPeople(ctx context.Context, q Queryer) ([]model.Person, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT person_id, name, age, gender, city FROM dim_person ORDER BY person_id`)
	if err != nil {
		return nil, storageErr("query dim_person", err)
	}
	defer rows.Close()

	people := []model.Person{}
	for rows.Next() {
		var p model.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.City); err != nil {
			return nil, storageErr("scan dim_person", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query dim_person", err)
	}
	return people, nil
}

// ListPurchases returns fact_people ordered by fact_id.
func ListPurchases(ctx context.Context, q Queryer) ([]model.Purchase, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT fact_id, person_id, purchase_amount, purchase_category FROM fact_people ORDER BY fact_id`)
	if err != nil {
		return nil, storageErr("query fact_people", err)
	}
	defer rows.Close()

	facts := []model.Purchase{}
	for rows.Next() {
		var f model.Purchase
		if err := rows.Scan(&f.ID, &f.PersonID, &f.Amount, &f.Category); err != nil {
			return nil, storageErr("scan fact_people", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query fact_people", err)
	}
	return facts, nil
}

// CountRows counts the rows of one of the warehouse tables.
func CountRows(ctx context.Context, q Queryer, table string) (int, error) {
	switch table {
	case TableDimPerson, TableFactPeople:
	default:
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}

	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, storageErr("count "+table, err)
	}
	return n, nil
}
