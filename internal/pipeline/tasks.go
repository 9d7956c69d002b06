package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/dataset"
	"go-star-pipeline/internal/store"
)

// CreateTables makes sure dim_person and fact_people exist in the warehouse
// at dbPath. Running it again is a no-op; existing rows are never touched.
func CreateTables(ctx context.Context, dbPath string) (err error) {
	start := time.Now()
	log := ctxlog.FromContext(ctx)
	log.Info("creating warehouse tables", "db", dbPath)

	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w: %w", dbPath, store.ErrStorage, cerr))
		}
	}()

	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}

	log.Info("warehouse tables ready", "tables", []string{store.TableDimPerson, store.TableFactPeople}, "duration", time.Since(start))
	return nil
}

// InsertData appends the persons and purchases of src to the warehouse at
// dbPath. Both batches share one transaction: if either table is missing
// nothing is written. Rows are appended on every call, never deduplicated.
func InsertData(ctx context.Context, dbPath string, src dataset.Source) (err error) {
	start := time.Now()
	log := ctxlog.FromContext(ctx)

	people, facts := src.Persons(), src.Purchases()
	log.Info("loading warehouse rows", "db", dbPath, "persons", len(people), "purchases", len(facts))

	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w: %w", dbPath, store.ErrStorage, cerr))
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w: %w", store.ErrStorage, err)
	}
	defer tx.Rollback()

	nPeople, err := store.AppendPeople(ctx, tx, people)
	if err != nil {
		return err
	}
	nFacts, err := store.AppendPurchases(ctx, tx, facts)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w: %w", store.ErrStorage, err)
	}

	log.Info("warehouse rows appended",
		store.TableDimPerson, nPeople, store.TableFactPeople, nFacts, "duration", time.Since(start))
	return nil
}
