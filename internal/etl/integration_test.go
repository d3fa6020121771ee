package etl_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/config"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/etl"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/logging"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/normalize"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/report"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/staging"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/synth"
)

const (
	testPort     = 15432
	testDB       = "hawtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var (
	testDSN string
	pg      *embeddedpostgres.EmbeddedPostgres
)

func TestMain(m *testing.M) {
	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg = embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30*time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupDB creates a connection pool over a freshly migrated schema.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := pool.Exec(ctx, "DROP SCHEMA IF EXISTS public CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA public"); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	log := logging.Setup("text")
	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}

	t.Cleanup(func() { pool.Close() })
	return pool
}

// stageSynth generates a deterministic dataset, writes it to a temp raw
// directory, and loads the CSV staging tables from it.
func stageSynth(t *testing.T, pool *pgxpool.Pool, seed int64, nPatients, nEncounters int) *synth.Dataset {
	t.Helper()
	ctx := context.Background()
	log := logging.Setup("text")

	ds := synth.Generate(seed, nPatients, nEncounters)
	dir := t.TempDir()
	if err := ds.WriteCSVDir(dir); err != nil {
		t.Fatalf("write raw extracts: %v", err)
	}
	res, err := staging.StageCSVDir(ctx, pool, log, dir)
	if err != nil {
		t.Fatalf("stage csv: %v", err)
	}
	want := int64(len(ds.Patients) + len(ds.Encounters) + len(ds.Charges) + len(ds.Labs) + len(ds.Staff))
	if res.Total() != want {
		t.Fatalf("staged %d rows, want %d", res.Total(), want)
	}
	return ds
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestEndToEnd_CSV(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	ds := stageSynth(t, pool, 1, 40, 150)

	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}
	summary, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("etl.Run: %v", err)
	}

	t.Run("summary_counts", func(t *testing.T) {
		if summary.Patients != len(ds.Patients) {
			t.Errorf("Patients: got %d, want %d", summary.Patients, len(ds.Patients))
		}
		if summary.Encounters != len(ds.Encounters) {
			t.Errorf("Encounters: got %d, want %d", summary.Encounters, len(ds.Encounters))
		}
		if summary.Charges != len(ds.Charges) {
			t.Errorf("Charges: got %d, want %d", summary.Charges, len(ds.Charges))
		}
		if summary.FactRows != len(ds.Encounters) {
			t.Errorf("FactRows: got %d, want %d", summary.FactRows, len(ds.Encounters))
		}
	})

	t.Run("warehouse_counts", func(t *testing.T) {
		for table, want := range map[string]int{
			"dim_patient":    summary.DimPatientRows,
			"dim_department": summary.DimDepartmentRows,
			"dim_provider":   summary.DimProviderRows,
			"dim_time":       summary.DimTimeRows,
			"fact_encounter": summary.FactRows,
		} {
			if got := countRows(t, pool, table); got != int64(want) {
				t.Errorf("%s: got %d rows, want %d", table, got, want)
			}
		}
		if got := countRows(t, pool, "dim_patient"); got != int64(len(ds.Patients)) {
			t.Errorf("dim_patient: got %d rows, want %d", got, len(ds.Patients))
		}
	})

	t.Run("fact_references_dims", func(t *testing.T) {
		for _, q := range []struct{ label, sql string }{
			{"patient", `SELECT count(*) FROM fact_encounter f LEFT JOIN dim_patient d USING (patient_id) WHERE d.patient_id IS NULL`},
			{"provider", `SELECT count(*) FROM fact_encounter f LEFT JOIN dim_provider d ON d.provider_id = f.provider_id AND d.department_id = f.department_id WHERE d.provider_id IS NULL`},
			{"department", `SELECT count(*) FROM fact_encounter f LEFT JOIN dim_department d USING (department_id) WHERE d.department_id IS NULL`},
			{"admit_date", `SELECT count(*) FROM fact_encounter f LEFT JOIN dim_time d ON d.date_key = f.admit_date WHERE d.date_key IS NULL`},
			{"discharge_date", `SELECT count(*) FROM fact_encounter f LEFT JOIN dim_time d ON d.date_key = f.discharge_date WHERE d.date_key IS NULL`},
		} {
			var orphans int64
			if err := pool.QueryRow(ctx, q.sql).Scan(&orphans); err != nil {
				t.Fatalf("%s: %v", q.label, err)
			}
			if orphans != 0 {
				t.Errorf("%d fact rows with no %s dimension row", orphans, q.label)
			}
		}
	})

	t.Run("charge_totals_and_los", func(t *testing.T) {
		enc := ds.Encounters[0]
		var expTotal float64
		for _, c := range ds.Charges {
			if c.EncounterID == enc.EncounterID {
				expTotal += c.Amount
			}
		}
		expTotal = math.Round(expTotal*100) / 100

		admit, err := normalize.ParseTimestamp(enc.AdmitTS)
		if err != nil {
			t.Fatalf("parse admit: %v", err)
		}
		discharge, err := normalize.ParseTimestamp(enc.DischargeTS)
		if err != nil {
			t.Fatalf("parse discharge: %v", err)
		}
		expLOS := math.Round(discharge.Sub(admit).Seconds()/86400.0*100) / 100

		var gotTotal, gotLOS float64
		err = pool.QueryRow(ctx,
			"SELECT total_charges::float8, length_of_stay_days FROM fact_encounter WHERE encounter_id = $1",
			enc.EncounterID).Scan(&gotTotal, &gotLOS)
		if err != nil {
			t.Fatalf("query fact: %v", err)
		}
		if gotTotal != expTotal {
			t.Errorf("total_charges: got %v, want %v", gotTotal, expTotal)
		}
		if gotLOS != expLOS {
			t.Errorf("length_of_stay_days: got %v, want %v", gotLOS, expLOS)
		}
	})

	t.Run("audit_closed_success", func(t *testing.T) {
		var status, notes string
		var finished *time.Time
		err := pool.QueryRow(ctx,
			"SELECT status, notes, finished_at FROM etl_run_log WHERE run_id = $1",
			summary.RunID).Scan(&status, &notes, &finished)
		if err != nil {
			t.Fatalf("query run log: %v", err)
		}
		if status != db.RunSuccess {
			t.Errorf("status: got %q, want %q", status, db.RunSuccess)
		}
		if finished == nil {
			t.Error("finished_at is null")
		}
		if !strings.Contains(notes, fmt.Sprintf("facts=%d", summary.FactRows)) {
			t.Errorf("notes %q missing fact count", notes)
		}
	})
}

func TestEndToEnd_RunTwiceIsStable(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 7, 25, 80)
	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}

	s1, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	var sum1 string
	if err := pool.QueryRow(ctx, "SELECT coalesce(sum(total_charges), 0)::text FROM fact_encounter").Scan(&sum1); err != nil {
		t.Fatalf("sum after first run: %v", err)
	}

	s2, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if s2.FactRows != s1.FactRows {
		t.Errorf("fact rows changed across reruns: %d then %d", s1.FactRows, s2.FactRows)
	}
	if got := countRows(t, pool, "fact_encounter"); got != int64(s1.FactRows) {
		t.Errorf("fact_encounter: got %d rows after rerun, want %d", got, s1.FactRows)
	}
	var sum2 string
	if err := pool.QueryRow(ctx, "SELECT coalesce(sum(total_charges), 0)::text FROM fact_encounter").Scan(&sum2); err != nil {
		t.Fatalf("sum after second run: %v", err)
	}
	if sum1 != sum2 {
		t.Errorf("charge totals changed across reruns: %s then %s", sum1, sum2)
	}
}

func TestEndToEnd_DuplicatePatientAborts(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 3, 20, 60)
	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}

	s1, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A duplicated staging patient must abort the next run before any
	// warehouse mutation.
	_, err = pool.Exec(ctx, `INSERT INTO stg_patients (patient_id, birth_year, sex)
		SELECT patient_id, birth_year, sex FROM stg_patients ORDER BY patient_id LIMIT 1`)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}

	_, err = etl.Run(ctx, pool, log, cfg)
	if err == nil {
		t.Fatal("expected validation failure, got nil")
	}
	var perr *etl.PipelineError
	if !errors.As(err, &perr) || perr.Phase != "validate" {
		t.Fatalf("expected pipeline error in validate phase, got %v", err)
	}
	var verr *etl.ValidationError
	if !errors.As(err, &verr) || verr.Check != "unique_patient_id" {
		t.Fatalf("expected unique_patient_id failure, got %v", err)
	}

	if got := countRows(t, pool, "fact_encounter"); got != int64(s1.FactRows) {
		t.Errorf("warehouse changed by aborted run: %d rows, want %d", got, s1.FactRows)
	}

	var status, notes string
	err = pool.QueryRow(ctx,
		"SELECT status, notes FROM etl_run_log ORDER BY run_id DESC LIMIT 1").Scan(&status, &notes)
	if err != nil {
		t.Fatalf("query run log: %v", err)
	}
	if status != db.RunFailed {
		t.Errorf("status: got %q, want %q", status, db.RunFailed)
	}
	if !strings.Contains(notes, "unique_patient_id") {
		t.Errorf("notes %q missing failed check name", notes)
	}
}

func TestEndToEnd_NegativeChargeAborts(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 5, 15, 40)
	_, err := pool.Exec(ctx, `UPDATE stg_charges SET amount = -50
		WHERE charge_id = (SELECT charge_id FROM stg_charges ORDER BY charge_id LIMIT 1)`)
	if err != nil {
		t.Fatalf("corrupt charge: %v", err)
	}

	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}
	_, err = etl.Run(ctx, pool, log, cfg)
	var verr *etl.ValidationError
	if !errors.As(err, &verr) || verr.Check != "no_negative_charges" {
		t.Fatalf("expected no_negative_charges failure, got %v", err)
	}
	if got := countRows(t, pool, "fact_encounter"); got != 0 {
		t.Errorf("aborted run loaded %d fact rows", got)
	}
}

func TestEndToEnd_NoChargesZeroFills(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 11, 15, 40)
	if _, err := pool.Exec(ctx, "DELETE FROM stg_charges"); err != nil {
		t.Fatalf("clear charges: %v", err)
	}

	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}
	summary, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("etl.Run: %v", err)
	}
	if summary.FactRows != 40 {
		t.Fatalf("FactRows: got %d, want 40", summary.FactRows)
	}
	var nonZero int64
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM fact_encounter WHERE total_charges <> 0").Scan(&nonZero); err != nil {
		t.Fatalf("query: %v", err)
	}
	if nonZero != 0 {
		t.Errorf("%d fact rows with non-zero charges in a charge-free run", nonZero)
	}
}

const testBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {"resource": {
      "resourceType": "Patient",
      "id": "patient-001",
      "gender": "female",
      "birthDate": "1980-05-10",
      "name": [{"given": ["Ana"], "family": "Reyes"}]
    }},
    {"resource": {
      "resourceType": "Encounter",
      "id": "enc-001",
      "status": "finished",
      "class": {"code": "EMER", "display": "emergency"},
      "subject": {"reference": "Patient/patient-001"},
      "period": {"start": "2024-03-01T08:30:00Z", "end": "2024-03-03T20:30:00Z"},
      "location": [{"location": {"display": "Emergency"}}],
      "participant": [{"individual": {"display": "Dr. Alice Smith"}}]
    }},
    {"resource": {
      "resourceType": "Observation",
      "id": "obs-001",
      "subject": {"reference": "Patient/patient-001"},
      "encounter": {"reference": "Encounter/enc-001"},
      "code": {"coding": [{"system": "http://loinc.org", "code": "2345-7"}]},
      "valueQuantity": {"value": 98.0, "unit": "mg/dL"}
    }},
    {"resource": {
      "resourceType": "ChargeItem",
      "id": "chg-001",
      "subject": {"reference": "Patient/patient-001"},
      "context": {"reference": "Encounter/enc-001"},
      "priceOverride": {"value": 120.5, "currency": "USD"}
    }},
    {"resource": {
      "resourceType": "ChargeItem",
      "id": "chg-002",
      "subject": {"reference": "Patient/patient-001"},
      "context": {"reference": "Encounter/enc-001"}
    }}
  ]
}`

func TestEndToEnd_FHIR(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bundle-001.json"), []byte(testBundle), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if _, err := staging.StageFHIRDir(ctx, pool, log, dir); err != nil {
		t.Fatalf("stage fhir: %v", err)
	}

	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "fhir"}
	summary, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("etl.Run: %v", err)
	}
	if summary.FactRows != 1 {
		t.Fatalf("FactRows: got %d, want 1", summary.FactRows)
	}

	t.Run("patient_remap", func(t *testing.T) {
		var birthYear *int
		var sex *string
		err := pool.QueryRow(ctx,
			"SELECT birth_year, sex FROM dim_patient WHERE patient_id = 'patient-001'").
			Scan(&birthYear, &sex)
		if err != nil {
			t.Fatalf("query dim_patient: %v", err)
		}
		if birthYear == nil || *birthYear != 1980 {
			t.Errorf("birth_year: got %v, want 1980", birthYear)
		}
		if sex == nil || *sex != "F" {
			t.Errorf("sex: got %v, want F", sex)
		}
	})

	t.Run("fact_remap", func(t *testing.T) {
		var providerID, deptID, encType string
		var los, total float64
		err := pool.QueryRow(ctx,
			`SELECT provider_id, department_id, encounter_type,
			        length_of_stay_days, total_charges::float8
			 FROM fact_encounter WHERE encounter_id = 'enc-001'`).
			Scan(&providerID, &deptID, &encType, &los, &total)
		if err != nil {
			t.Fatalf("query fact: %v", err)
		}
		name := "Dr. Alice Smith"
		if want := normalize.ProviderID(&name); providerID != want {
			t.Errorf("provider_id: got %q, want %q", providerID, want)
		}
		if deptID != "Emergency" {
			t.Errorf("department_id: got %q, want Emergency", deptID)
		}
		if encType != "emergency" {
			t.Errorf("encounter_type: got %q, want emergency", encType)
		}
		if los != 2.5 {
			t.Errorf("length_of_stay_days: got %v, want 2.5", los)
		}
		// chg-001 carries 120.50; chg-002 has no price and contributes zero.
		if total != 120.50 {
			t.Errorf("total_charges: got %v, want 120.50", total)
		}
	})
}

// A fact row whose keys resolve against no dimension row must roll the
// whole reload back, keeping the previous warehouse generation.
func TestLoad_FKViolationRollsBack(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 17, 10, 30)
	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}
	s1, err := etl.Run(ctx, pool, log, cfg)
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}

	runID, err := db.OpenRun(ctx, pool, "bad load")
	if err != nil {
		t.Fatalf("open run: %v", err)
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := &model.Warehouse{
		Dates: []model.DimTime{{DateKey: day, Year: 2024, Month: 1, Day: 1, DOW: 0}},
		Facts: []model.FactEncounter{{
			EncounterID: "e-bad", PatientID: "p-missing",
			ProviderID: "prv-missing", DepartmentID: "dept-missing",
			AdmitDate: day, DischargeDate: day, EncounterType: "ED",
		}},
	}
	if _, err := etl.Load(ctx, pool, log, bad, runID, "bad load"); err == nil {
		t.Fatal("expected FK violation, got nil")
	}

	if got := countRows(t, pool, "fact_encounter"); got != int64(s1.FactRows) {
		t.Errorf("previous generation lost: %d fact rows, want %d", got, s1.FactRows)
	}
	var status string
	if err := pool.QueryRow(ctx,
		"SELECT status FROM etl_run_log WHERE run_id = $1", runID).Scan(&status); err != nil {
		t.Fatalf("query run log: %v", err)
	}
	// The success close rides inside the load transaction; a rollback must
	// leave the row open, not successful.
	if status != db.RunRunning {
		t.Errorf("status after rollback: got %q, want %q", status, db.RunRunning)
	}
}

// writeRawDir writes a raw extract directory from literal CSV contents.
func writeRawDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// equivBundle carries the same clinical facts as the CSV extracts in
// TestEndToEnd_SourceEquivalence: one patient, one 36-hour emergency
// encounter with a single 450.25 charge and one lab result.
const equivBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {"resource": {
      "resourceType": "Patient",
      "id": "patient-001",
      "gender": "female",
      "birthDate": "1980-05-10"
    }},
    {"resource": {
      "resourceType": "Encounter",
      "id": "enc-001",
      "status": "finished",
      "class": {"code": "EMER", "display": "emergency"},
      "subject": {"reference": "Patient/patient-001"},
      "period": {"start": "2024-01-01T00:00:00Z", "end": "2024-01-02T12:00:00Z"},
      "location": [{"location": {"display": "Emergency"}}],
      "participant": [{"individual": {"display": "Dr. Alice Smith"}}]
    }},
    {"resource": {
      "resourceType": "Observation",
      "id": "obs-001",
      "subject": {"reference": "Patient/patient-001"},
      "encounter": {"reference": "Encounter/enc-001"},
      "code": {"coding": [{"system": "http://loinc.org", "code": "718-7"}]},
      "valueQuantity": {"value": 13.2, "unit": "g/dL"}
    }},
    {"resource": {
      "resourceType": "ChargeItem",
      "id": "chg-001",
      "subject": {"reference": "Patient/patient-001"},
      "context": {"reference": "Encounter/enc-001"},
      "priceOverride": {"value": 450.25, "currency": "USD"}
    }}
  ]
}`

// equivFact is the warehouse projection both sources must agree on.
// Provider ids are source-derived (raw id vs. name hash) and excluded.
type equivFact struct {
	patientID     string
	departmentID  string
	encounterType string
	admitDate     time.Time
	dischargeDate time.Time
	los           float64
	total         float64
	birthYear     int
	sex           string
}

func readEquivFact(t *testing.T, pool *pgxpool.Pool, encounterID string) equivFact {
	t.Helper()
	var f equivFact
	err := pool.QueryRow(context.Background(),
		`SELECT f.patient_id, f.department_id, f.encounter_type,
		        f.admit_date, f.discharge_date, f.length_of_stay_days,
		        f.total_charges::float8, p.birth_year, p.sex
		 FROM fact_encounter f
		 JOIN dim_patient p USING (patient_id)
		 WHERE f.encounter_id = $1`, encounterID).
		Scan(&f.patientID, &f.departmentID, &f.encounterType,
			&f.admitDate, &f.dischargeDate, &f.los,
			&f.total, &f.birthYear, &f.sex)
	if err != nil {
		t.Fatalf("read fact %s: %v", encounterID, err)
	}
	return f
}

// The same clinical facts staged through the CSV path and the FHIR path
// must produce identical fact rows, apart from the source-derived
// provider id.
func TestEndToEnd_SourceEquivalence(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	rawDir := writeRawDir(t, map[string]string{
		"patients.csv": "patient_id,birth_year,sex\npatient-001,1980,F\n",
		"encounters.csv": "encounter_id,patient_id,provider_id,department_id,admit_ts,discharge_ts,encounter_type\n" +
			"enc-001,patient-001,PRV0001,Emergency,2024-01-01T00:00:00Z,2024-01-02T12:00:00Z,emergency\n",
		"charges.csv": "charge_id,encounter_id,cpt_code,amount,posted_ts\nc1,enc-001,,450.25,\n",
		"labs.csv":    "lab_id,encounter_id,loinc_code,result_value,unit,result_ts\nl1,enc-001,718-7,13.2,g/dL,\n",
		"staff.csv":   "staff_id,provider_id,role,hire_date\n",
	})
	if _, err := staging.StageCSVDir(ctx, pool, log, rawDir); err != nil {
		t.Fatalf("stage csv: %v", err)
	}
	if _, err := etl.Run(ctx, pool, log, &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}); err != nil {
		t.Fatalf("csv run: %v", err)
	}
	fromCSV := readEquivFact(t, pool, "enc-001")

	fhirDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(fhirDir, "bundle-equiv.json"), []byte(equivBundle), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if _, err := staging.StageFHIRDir(ctx, pool, log, fhirDir); err != nil {
		t.Fatalf("stage fhir: %v", err)
	}
	if _, err := etl.Run(ctx, pool, log, &config.Config{DSN: testDSN, LogFormat: "text", Source: "fhir"}); err != nil {
		t.Fatalf("fhir run: %v", err)
	}
	fromFHIR := readEquivFact(t, pool, "enc-001")

	if fromCSV != fromFHIR {
		t.Errorf("sources disagree:\n csv:  %+v\n fhir: %+v", fromCSV, fromFHIR)
	}
	if fromCSV.los != 1.50 {
		t.Errorf("length_of_stay_days: got %v, want 1.50", fromCSV.los)
	}
	if fromCSV.total != 450.25 {
		t.Errorf("total_charges: got %v, want 450.25", fromCSV.total)
	}
}

func TestStageCSV_ParseErrorFailsRun(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	dir := writeRawDir(t, map[string]string{
		"patients.csv":   "patient_id,birth_year,sex\np1,1980,F\n",
		"encounters.csv": "encounter_id,patient_id,provider_id,department_id,admit_ts,discharge_ts,encounter_type\n",
		"charges.csv":    "charge_id,encounter_id,cpt_code,amount,posted_ts\nc1,e1,,twelve,\n",
		"labs.csv":       "lab_id,encounter_id,loinc_code,result_value,unit,result_ts\n",
		"staff.csv":      "staff_id,provider_id,role,hire_date\n",
	})
	_, err := staging.StageCSVDir(ctx, pool, log, dir)
	if err == nil {
		t.Fatal("expected parse failure, got nil")
	}
	if !strings.Contains(err.Error(), "amount") {
		t.Errorf("error %q does not name the bad column", err)
	}

	var status string
	if err := pool.QueryRow(ctx,
		"SELECT status FROM etl_run_log ORDER BY run_id DESC LIMIT 1").Scan(&status); err != nil {
		t.Fatalf("query run log: %v", err)
	}
	if status != db.RunFailed {
		t.Errorf("status: got %q, want %q", status, db.RunFailed)
	}
}

// A COPY that the server aborts partway through must surface as an error
// without hanging, even with far more rows still unread than the staging
// channel buffers.
func TestStageCSV_CopyAbortDoesNotHang(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	if _, err := pool.Exec(ctx,
		"ALTER TABLE stg_charges ADD CONSTRAINT stg_charges_amount_nonneg CHECK (amount >= 0)"); err != nil {
		t.Fatalf("add constraint: %v", err)
	}

	var charges strings.Builder
	charges.WriteString("charge_id,encounter_id,cpt_code,amount,posted_ts\n")
	charges.WriteString("c0,e1,,-5,\n")
	for i := 1; i <= 2000; i++ {
		fmt.Fprintf(&charges, "c%d,e1,,10,\n", i)
	}

	dir := writeRawDir(t, map[string]string{
		"patients.csv":   "patient_id,birth_year,sex\n",
		"encounters.csv": "encounter_id,patient_id,provider_id,department_id,admit_ts,discharge_ts,encounter_type\n",
		"charges.csv":    charges.String(),
		"labs.csv":       "lab_id,encounter_id,loinc_code,result_value,unit,result_ts\n",
		"staff.csv":      "staff_id,provider_id,role,hire_date\n",
	})

	done := make(chan error, 1)
	go func() {
		_, err := staging.StageCSVDir(ctx, pool, log, dir)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected copy failure, got nil")
		}
	case <-time.After(60 * time.Second):
		t.Fatal("staging hung after aborted COPY")
	}
}

func TestReportExport(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text")

	stageSynth(t, pool, 13, 20, 60)
	cfg := &config.Config{DSN: testDSN, LogFormat: "text", Source: "csv"}
	if _, err := etl.Run(ctx, pool, log, cfg); err != nil {
		t.Fatalf("etl.Run: %v", err)
	}

	out := t.TempDir()
	if err := report.ExportAll(ctx, pool, log, out); err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, f := range []string{"encounters_by_department_month.csv", "avg_los_by_encounter_type.csv"} {
		data, err := os.ReadFile(filepath.Join(out, f))
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) < 2 {
			t.Errorf("%s: expected header plus data rows, got %d line(s)", f, len(lines))
		}
	}
}
