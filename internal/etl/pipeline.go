package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/config"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Run executes the validate-and-build pipeline: normalize → validate →
// build → load. The audit record opens before any staging read and is
// closed on every exit path: inside the load transaction on success, and
// with a failed status plus the failure reason otherwise.
func Run(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, cfg *config.Config) (*model.RunSummary, error) {
	totalStart := time.Now()

	src, err := config.ParseSource(cfg.Source)
	if err != nil {
		return nil, &PipelineError{Phase: "config", Err: err}
	}

	runID, err := db.OpenRun(ctx, pool, "validate + build warehouse")
	if err != nil {
		return nil, &PipelineError{Phase: "audit", Err: err}
	}

	fail := func(phase string, err error) (*model.RunSummary, error) {
		perr := &PipelineError{Phase: phase, Err: err}
		if closeErr := db.CloseRun(ctx, pool, runID, db.RunFailed, perr.Error()); closeErr != nil {
			log.Warn().Err(closeErr).Int64("run_id", runID).Msg("could not close audit run")
		}
		return nil, perr
	}

	norm := NewNormalizer(src, pool)
	log.Info().Str("source", string(norm.Source())).Int64("run_id", runID).Msg("starting normalize")
	normStart := time.Now()
	batch, err := norm.Normalize(ctx)
	if err != nil {
		return fail("normalize", err)
	}
	normDur := time.Since(normStart)
	log.Info().
		Int("patients", len(batch.Patients)).
		Int("encounters", len(batch.Encounters)).
		Int("charges", len(batch.Charges)).
		Int("labs", len(batch.Labs)).
		Int("staff", len(batch.Staff)).
		Str("duration", normDur.String()).
		Msg("normalize complete")

	log.Info().Msg("starting validation")
	valStart := time.Now()
	if err := Validate(batch); err != nil {
		return fail("validate", err)
	}
	valDur := time.Since(valStart)
	log.Info().Str("duration", valDur.String()).Msg("validation passed")

	buildStart := time.Now()
	w := Build(batch)
	buildDur := time.Since(buildStart)
	log.Info().
		Int("dim_time", len(w.Dates)).
		Int("fact_encounter", len(w.Facts)).
		Str("duration", buildDur.String()).
		Msg("dimensional build complete")

	note := fmt.Sprintf(
		"warehouse built (truncate+reload): source=%s patients=%d departments=%d providers=%d dates=%d facts=%d",
		src, len(w.Patients), len(w.Departments), len(w.Providers), len(w.Dates), len(w.Facts))
	loadDur, err := Load(ctx, pool, log, w, runID, note)
	if err != nil {
		return fail("load", err)
	}

	summary := &model.RunSummary{
		RunID:             runID,
		Source:            string(src),
		Patients:          len(batch.Patients),
		Encounters:        len(batch.Encounters),
		Charges:           len(batch.Charges),
		Labs:              len(batch.Labs),
		Staff:             len(batch.Staff),
		DimPatientRows:    len(w.Patients),
		DimDepartmentRows: len(w.Departments),
		DimProviderRows:   len(w.Providers),
		DimTimeRows:       len(w.Dates),
		FactRows:          len(w.Facts),
		DurationNormalize: normDur,
		DurationValidate:  valDur,
		DurationBuild:     buildDur,
		DurationLoad:      loadDur,
		DurationTotal:     time.Since(totalStart),
	}

	log.Info().
		Int64("run_id", summary.RunID).
		Int("fact_rows", summary.FactRows).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("pipeline complete")
	return summary, nil
}
