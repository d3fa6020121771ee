package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/fhir"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// StageFHIRDir parses every .json bundle in dir and loads the flattened
// resources into the FHIR staging tables. All bundles are combined into one
// staging load tagged with a fresh batch id.
func StageFHIRDir(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, dir string) (*Result, error) {
	start := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no .json bundles found in %s", dir)
	}

	batchID := uuid.New()
	var rec fhir.Records
	for _, name := range files {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bundle %s: %w", name, err)
		}
		before := counts(&rec)
		parseErr := fhir.ParseBundle(f, &rec)
		f.Close()
		if parseErr != nil {
			return nil, fmt.Errorf("bundle %s: %w", name, parseErr)
		}
		tagBatch(&rec, before, name, batchID)
	}

	if len(rec.Patients) == 0 {
		return nil, fmt.Errorf("no Patient resources found")
	}
	if len(rec.Encounters) == 0 {
		return nil, fmt.Errorf("no Encounter resources found")
	}

	runID, err := db.OpenRun(ctx, pool, "ingest fhir bundle(s)")
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Rows: make(map[string]int64)}
	if err := loadFHIRTables(ctx, pool, &rec, res); err != nil {
		if closeErr := db.CloseRun(ctx, pool, runID, db.RunFailed, err.Error()); closeErr != nil {
			log.Warn().Err(closeErr).Msg("could not close audit run")
		}
		return nil, err
	}

	res.Duration = time.Since(start)
	note := fmt.Sprintf("FHIR staged: patient=%d, encounter=%d, obs=%d, chargeitem=%d",
		len(rec.Patients), len(rec.Encounters), len(rec.Observations), len(rec.ChargeItems))
	if err := db.CloseRun(ctx, pool, runID, db.RunSuccess, note); err != nil {
		return nil, err
	}

	log.Info().
		Int("bundles", len(files)).
		Int("patients", len(rec.Patients)).
		Int("encounters", len(rec.Encounters)).
		Int("observations", len(rec.Observations)).
		Int("chargeitems", len(rec.ChargeItems)).
		Str("batch_id", batchID.String()).
		Msg("fhir staging complete")
	return res, nil
}

func loadFHIRTables(ctx context.Context, pool *pgxpool.Pool, rec *fhir.Records, res *Result) error {
	for _, table := range []string{"stg_fhir_patient", "stg_fhir_encounter", "stg_fhir_observation", "stg_fhir_chargeitem"} {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	n, err := copyRows(ctx, pool, "stg_fhir_patient", model.StgFHIRPatientColumns(),
		len(rec.Patients), func(i int) db.CopyRow { return &rec.Patients[i] })
	if err != nil {
		return err
	}
	res.Rows["stg_fhir_patient"] = n

	n, err = copyRows(ctx, pool, "stg_fhir_encounter", model.StgFHIREncounterColumns(),
		len(rec.Encounters), func(i int) db.CopyRow { return &rec.Encounters[i] })
	if err != nil {
		return err
	}
	res.Rows["stg_fhir_encounter"] = n

	n, err = copyRows(ctx, pool, "stg_fhir_observation", model.StgFHIRObservationColumns(),
		len(rec.Observations), func(i int) db.CopyRow { return &rec.Observations[i] })
	if err != nil {
		return err
	}
	res.Rows["stg_fhir_observation"] = n

	n, err = copyRows(ctx, pool, "stg_fhir_chargeitem", model.StgFHIRChargeItemColumns(),
		len(rec.ChargeItems), func(i int) db.CopyRow { return &rec.ChargeItems[i] })
	if err != nil {
		return err
	}
	res.Rows["stg_fhir_chargeitem"] = n
	return nil
}

func copyRows(ctx context.Context, pool *pgxpool.Pool, table string, cols []string, n int, row func(int) db.CopyRow) (int64, error) {
	ch := make(chan db.CopyRow, 256)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			select {
			case ch <- row(i):
			case <-ctx.Done():
				return
			}
		}
	}()
	count, err := pool.CopyFrom(ctx, pgx.Identifier{table}, cols, db.NewChannelSource(ch))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", table, err)
	}
	return count, nil
}

type recCounts struct{ pat, enc, obs, chg int }

func counts(rec *fhir.Records) recCounts {
	return recCounts{len(rec.Patients), len(rec.Encounters), len(rec.Observations), len(rec.ChargeItems)}
}

// tagBatch stamps the rows appended by the latest bundle with their source
// file and the staging batch id.
func tagBatch(rec *fhir.Records, before recCounts, file string, batchID uuid.UUID) {
	for i := before.pat; i < len(rec.Patients); i++ {
		rec.Patients[i].SourceFile = file
		rec.Patients[i].IngestBatchID = batchID
	}
	for i := before.enc; i < len(rec.Encounters); i++ {
		rec.Encounters[i].SourceFile = file
		rec.Encounters[i].IngestBatchID = batchID
	}
	for i := before.obs; i < len(rec.Observations); i++ {
		rec.Observations[i].SourceFile = file
		rec.Observations[i].IngestBatchID = batchID
	}
	for i := before.chg; i < len(rec.ChargeItems); i++ {
		rec.ChargeItems[i].SourceFile = file
		rec.ChargeItems[i].IngestBatchID = batchID
	}
}
