package pipeline

import (
	"context"
	"errors"
	"slices"

	"go-star-pipeline/internal/store"
)

// Stage is how far the warehouse has progressed. It only moves forward:
// schema-pending -> schema-ready -> data-loaded.
type Stage string

const (
	StageSchemaPending Stage = "schema-pending"
	StageSchemaReady   Stage = "schema-ready"
	StageDataLoaded    Stage = "data-loaded"
)

// Report is a snapshot of the warehouse.
type Report struct {
	Stage     Stage `json:"stage"`
	Persons   int   `json:"persons"`
	Purchases int   `json:"purchases"`
}

// Inspect reads the warehouse at dbPath and reports its stage and row counts.
// The file is opened read-only; a missing file is schema-pending.
func Inspect(ctx context.Context, dbPath string) (Report, error) {
	db, err := store.OpenReadOnly(ctx, dbPath)
	if errors.Is(err, store.ErrNotFound) {
		return Report{Stage: StageSchemaPending}, nil
	}
	if err != nil {
		return Report{}, err
	}
	defer db.Close()

	tables, err := store.Tables(ctx, db)
	if err != nil {
		return Report{}, err
	}
	if !slices.Contains(tables, store.TableDimPerson) || !slices.Contains(tables, store.TableFactPeople) {
		return Report{Stage: StageSchemaPending}, nil
	}

	rep := Report{Stage: StageSchemaReady}
	if rep.Persons, err = store.CountRows(ctx, db, store.TableDimPerson); err != nil {
		return Report{}, err
	}
	if rep.Purchases, err = store.CountRows(ctx, db, store.TableFactPeople); err != nil {
		return Report{}, err
	}
	if rep.Persons > 0 || rep.Purchases > 0 {
		rep.Stage = StageDataLoaded
	}
	return rep, nil
}

// CurrentStage returns the stage of the warehouse at dbPath.
func CurrentStage(ctx context.Context, dbPath string) (Stage, error) {
	rep, err := Inspect(ctx, dbPath)
	if err != nil {
		return "", err
	}
	return rep.Stage, nil
}
