package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
	embedsql "github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/sql"
)

// Load replaces the entire warehouse content with w as one transaction.
// Clear order is fact before dimensions and load order is dimensions before
// fact, because every fact FK must resolve against the just-reloaded
// dimensions. The audit row is closed inside the same transaction, so a
// rollback also reverts the success marker. Any FK violation here is the
// correctness backstop behind the validator: the transaction rolls back and
// the warehouse keeps its pre-run contents.
func Load(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, w *model.Warehouse, runID int64, note string) (time.Duration, error) {
	start := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		"TRUNCATE TABLE fact_encounter",
		"TRUNCATE TABLE dim_time CASCADE",
		"TRUNCATE TABLE dim_provider CASCADE",
		"TRUNCATE TABLE dim_department CASCADE",
		"TRUNCATE TABLE dim_patient CASCADE",
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("%s: %w", stmt, err)
		}
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"dim_department"}, model.DimDepartmentColumns(),
		pgx.CopyFromSlice(len(w.Departments), func(i int) ([]any, error) {
			return w.Departments[i].CopyValues(), nil
		})); err != nil {
		return 0, fmt.Errorf("load dim_department: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"dim_provider"}, model.DimProviderColumns(),
		pgx.CopyFromSlice(len(w.Providers), func(i int) ([]any, error) {
			return w.Providers[i].CopyValues(), nil
		})); err != nil {
		return 0, fmt.Errorf("load dim_provider: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"dim_patient"}, model.DimPatientColumns(),
		pgx.CopyFromSlice(len(w.Patients), func(i int) ([]any, error) {
			return w.Patients[i].CopyValues(), nil
		})); err != nil {
		return 0, fmt.Errorf("load dim_patient: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"dim_time"}, model.DimTimeColumns(),
		pgx.CopyFromSlice(len(w.Dates), func(i int) ([]any, error) {
			return w.Dates[i].CopyValues(), nil
		})); err != nil {
		return 0, fmt.Errorf("load dim_time: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"fact_encounter"}, model.FactEncounterColumns(),
		pgx.CopyFromSlice(len(w.Facts), func(i int) ([]any, error) {
			return w.Facts[i].CopyValues(), nil
		})); err != nil {
		return 0, fmt.Errorf("load fact_encounter: %w", err)
	}

	if _, err := tx.Exec(ctx, embedsql.CloseRun, runID, db.RunSuccess, note); err != nil {
		return 0, fmt.Errorf("close run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	dur := time.Since(start)
	log.Info().
		Int("dim_patient", len(w.Patients)).
		Int("dim_department", len(w.Departments)).
		Int("dim_provider", len(w.Providers)).
		Int("dim_time", len(w.Dates)).
		Int("fact_encounter", len(w.Facts)).
		Str("duration", dur.String()).
		Msg("warehouse replaced")
	return dur, nil
}
