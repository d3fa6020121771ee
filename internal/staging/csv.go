// Package staging loads raw source extracts (flat CSVs, FHIR JSON bundles)
// into their staging tables via the COPY protocol. Staging is
// truncate-and-reload per run and records its own audit row.
package staging

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// csvFiles maps each CSV staging table to its raw extract file.
var csvFiles = []struct {
	table string
	file  string
}{
	{"stg_patients", "patients.csv"},
	{"stg_encounters", "encounters.csv"},
	{"stg_charges", "charges.csv"},
	{"stg_labs", "labs.csv"},
	{"stg_staff", "staff.csv"},
}

// Result holds per-table row counts from one staging run.
type Result struct {
	RunID    int64
	Rows     map[string]int64
	Duration time.Duration
}

// Total sums the per-table row counts.
func (r *Result) Total() int64 {
	var n int64
	for _, v := range r.Rows {
		n += v
	}
	return n
}

// StageCSVDir loads the five raw CSVs from dir into the CSV staging tables.
func StageCSVDir(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, dir string) (*Result, error) {
	start := time.Now()

	for _, f := range csvFiles {
		path := filepath.Join(dir, f.file)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("missing extract %s: %w", f.file, err)
		}
	}

	runID, err := db.OpenRun(ctx, pool, "load staging (csv)")
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Rows: make(map[string]int64)}
	if err := stageCSVTables(ctx, pool, log, dir, res); err != nil {
		if closeErr := db.CloseRun(ctx, pool, runID, db.RunFailed, err.Error()); closeErr != nil {
			log.Warn().Err(closeErr).Msg("could not close audit run")
		}
		return nil, err
	}

	res.Duration = time.Since(start)
	note := fmt.Sprintf("loaded staging tables, rows=%d", res.Total())
	if err := db.CloseRun(ctx, pool, runID, db.RunSuccess, note); err != nil {
		return nil, err
	}

	log.Info().
		Int64("rows", res.Total()).
		Str("duration", res.Duration.String()).
		Msg("csv staging complete")
	return res, nil
}

func stageCSVTables(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, dir string, res *Result) error {
	for _, f := range csvFiles {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+f.table); err != nil {
			return fmt.Errorf("truncate %s: %w", f.table, err)
		}
	}

	for _, f := range csvFiles {
		path := filepath.Join(dir, f.file)
		n, err := stageFile(ctx, pool, path, f.table)
		if err != nil {
			return fmt.Errorf("stage %s: %w", f.table, err)
		}
		res.Rows[f.table] = n
		log.Info().Str("table", f.table).Int64("rows", n).Msg("staged")
	}
	return nil
}

// stageFile streams one CSV into its staging table: a producer goroutine
// parses records and pushes rows to a channel-backed CopyFromSource.
func stageFile(ctx context.Context, pool *pgxpool.Pool, path, table string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols, parse, err := tableParser(table)
	if err != nil {
		return 0, err
	}

	// The producer selects on ctx so an aborted COPY (connection loss, a
	// server-side error mid-stream) cannot leave it blocked on a full
	// channel; cancel fires as soon as CopyFrom returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan db.CopyRow, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		rowNum := int64(1)
		for {
			rec, readErr := r.Read()
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				errCh <- fmt.Errorf("read row %d: %w", rowNum, readErr)
				return
			}
			rowNum++
			row, parseErr := parse(idx, rec)
			if parseErr != nil {
				errCh <- fmt.Errorf("row %d: %w", rowNum, parseErr)
				return
			}
			select {
			case ch <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		errCh <- nil
	}()

	n, copyErr := pool.CopyFrom(ctx, pgx.Identifier{table}, cols, db.NewChannelSource(ch))
	cancel()

	// A producer error is the root cause when present; a bare Canceled just
	// means the producer was unblocked after the copy ended.
	if prodErr := <-errCh; prodErr != nil && !errors.Is(prodErr, context.Canceled) {
		return 0, prodErr
	}
	if copyErr != nil {
		return 0, fmt.Errorf("copy: %w", copyErr)
	}
	return n, nil
}

type rowParser func(idx map[string]int, rec []string) (db.CopyRow, error)

func tableParser(table string) ([]string, rowParser, error) {
	switch table {
	case "stg_patients":
		return model.StgPatientColumns(), parsePatient, nil
	case "stg_encounters":
		return model.StgEncounterColumns(), parseEncounter, nil
	case "stg_charges":
		return model.StgChargeColumns(), parseCharge, nil
	case "stg_labs":
		return model.StgLabColumns(), parseLab, nil
	case "stg_staff":
		return model.StgStaffColumns(), parseStaff, nil
	}
	return nil, nil, fmt.Errorf("unknown staging table %q", table)
}

func parsePatient(idx map[string]int, rec []string) (db.CopyRow, error) {
	birthYear, err := optInt(field(idx, rec, "birth_year"))
	if err != nil {
		return nil, fmt.Errorf("birth_year: %w", err)
	}
	return &model.StgPatient{
		PatientID: field(idx, rec, "patient_id"),
		BirthYear: birthYear,
		Sex:       optStr(field(idx, rec, "sex")),
	}, nil
}

func parseEncounter(idx map[string]int, rec []string) (db.CopyRow, error) {
	return &model.StgEncounter{
		EncounterID:   field(idx, rec, "encounter_id"),
		PatientID:     field(idx, rec, "patient_id"),
		ProviderID:    field(idx, rec, "provider_id"),
		DepartmentID:  field(idx, rec, "department_id"),
		AdmitTS:       field(idx, rec, "admit_ts"),
		DischargeTS:   field(idx, rec, "discharge_ts"),
		EncounterType: field(idx, rec, "encounter_type"),
	}, nil
}

func parseCharge(idx map[string]int, rec []string) (db.CopyRow, error) {
	amount, err := strconv.ParseFloat(field(idx, rec, "amount"), 64)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &model.StgCharge{
		ChargeID:    field(idx, rec, "charge_id"),
		EncounterID: field(idx, rec, "encounter_id"),
		CPTCode:     optStr(field(idx, rec, "cpt_code")),
		Amount:      amount,
		PostedTS:    optStr(field(idx, rec, "posted_ts")),
	}, nil
}

func parseLab(idx map[string]int, rec []string) (db.CopyRow, error) {
	value, err := optFloat(field(idx, rec, "result_value"))
	if err != nil {
		return nil, fmt.Errorf("result_value: %w", err)
	}
	return &model.StgLab{
		LabID:       field(idx, rec, "lab_id"),
		EncounterID: field(idx, rec, "encounter_id"),
		LOINCCode:   optStr(field(idx, rec, "loinc_code")),
		ResultValue: value,
		Unit:        optStr(field(idx, rec, "unit")),
		ResultTS:    optStr(field(idx, rec, "result_ts")),
	}, nil
}

func parseStaff(idx map[string]int, rec []string) (db.CopyRow, error) {
	return &model.StgStaff{
		StaffID:    field(idx, rec, "staff_id"),
		ProviderID: field(idx, rec, "provider_id"),
		Role:       optStr(field(idx, rec, "role")),
		HireDate:   optStr(field(idx, rec, "hire_date")),
	}, nil
}

func field(idx map[string]int, rec []string, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
