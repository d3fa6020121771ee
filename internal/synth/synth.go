// Package synth generates a deterministic synthetic hospital dataset in the
// raw CSV extract shape. The same seed always yields the same files, which
// keeps test fixtures reproducible.
package synth

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// Anchor is the fixed "now" the generator works back from, so output does
// not depend on wall-clock time.
var Anchor = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type department struct {
	id   string
	name string
}

var departments = []department{
	{"ED", "Emergency"},
	{"MED", "Med/Surg"},
	{"ICU", "ICU"},
	{"LAB", "Laboratory"},
	{"RAD", "Radiology"},
	{"OB", "OB/GYN"},
	{"PT", "Physical Therapy"},
}

var encounterTypes = []string{"ED", "Inpatient", "Outpatient", "Observation"}

var cptCodes = []string{"99283", "99284", "99285", "93000", "80053", "85025", "71045", "74177", "36415"}

type labTest struct {
	code string
	unit string
	lo   float64
	hi   float64
}

var labTests = []labTest{
	{"718-7", "g/dL", 10.0, 17.5},
	{"4548-4", "%", 30.0, 52.0},
	{"6690-2", "10^3/uL", 3.5, 17.0},
	{"2951-2", "mmol/L", 130.0, 150.0},
	{"2823-3", "mmol/L", 3.0, 5.8},
	{"2075-0", "mmol/L", 95.0, 110.0},
	{"2160-0", "mg/dL", 0.5, 2.2},
}

var staffRoles = []string{"RN", "MD", "PA", "NP", "Tech", "Admin"}

// Dataset is one generated batch of raw extract rows.
type Dataset struct {
	Patients   []model.StgPatient
	Encounters []model.StgEncounter
	Charges    []model.StgCharge
	Labs       []model.StgLab
	Staff      []model.StgStaff
}

type provider struct {
	id   string
	dept string
}

// Generate builds a dataset with the given seed and sizes.
func Generate(seed int64, nPatients, nEncounters int) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	d := &Dataset{}

	providers := make([]provider, 40)
	for i := range providers {
		providers[i] = provider{
			id:   fmt.Sprintf("PRV%04d", i+1),
			dept: departments[rng.Intn(len(departments))].id,
		}
	}

	for i := 1; i <= nPatients; i++ {
		birthYear := 1935 + rng.Intn(2020-1935+1)
		sex := "F"
		if rng.Intn(2) == 0 {
			sex = "M"
		}
		d.Patients = append(d.Patients, model.StgPatient{
			PatientID: fmt.Sprintf("PAT%05d", i),
			BirthYear: &birthYear,
			Sex:       &sex,
		})
	}

	// Encounters spread over the trailing ~18 months.
	windowStart := Anchor.AddDate(0, 0, -540)
	chargeID := 1
	labID := 1
	for i := 1; i <= nEncounters; i++ {
		pat := d.Patients[rng.Intn(len(d.Patients))]
		prv := providers[rng.Intn(len(providers))]
		etype := encounterTypes[rng.Intn(len(encounterTypes))]

		admit := windowStart.Add(time.Duration(rng.Intn(540*24*60)) * time.Minute)

		var losHours int
		switch etype {
		case "Inpatient":
			losHours = 24 + rng.Intn(24*9+1)
		case "Observation":
			losHours = 8 + rng.Intn(29)
		case "ED":
			losHours = 1 + rng.Intn(12)
		default:
			losHours = 1 + rng.Intn(6)
		}
		discharge := admit.Add(time.Duration(losHours) * time.Hour)

		enc := model.StgEncounter{
			EncounterID:   fmt.Sprintf("ENC%06d", i),
			PatientID:     pat.PatientID,
			ProviderID:    prv.id,
			DepartmentID:  prv.dept,
			AdmitTS:       admit.Format(time.RFC3339),
			DischargeTS:   discharge.Format(time.RFC3339),
			EncounterType: etype,
		}
		d.Encounters = append(d.Encounters, enc)

		// 1..8 charge lines, log-normal-ish positive amounts.
		nLines := 1 + rng.Intn(8)
		for j := 0; j < nLines; j++ {
			amount := math.Exp(6.2 + 0.6*rng.NormFloat64())
			amount = math.Round(math.Max(5.0, amount)*100) / 100
			cpt := cptCodes[rng.Intn(len(cptCodes))]
			posted := admit.Add(time.Duration(rng.Intn(49)) * time.Hour).Format(time.RFC3339)
			d.Charges = append(d.Charges, model.StgCharge{
				ChargeID:    fmt.Sprintf("CHG%08d", chargeID),
				EncounterID: enc.EncounterID,
				CPTCode:     &cpt,
				Amount:      amount,
				PostedTS:    &posted,
			})
			chargeID++
		}

		// Not every encounter has labs.
		if rng.Float64() < 0.55 {
			nLabs := 1 + rng.Intn(6)
			for j := 0; j < nLabs; j++ {
				test := labTests[rng.Intn(len(labTests))]
				val := math.Round((test.lo+rng.Float64()*(test.hi-test.lo))*10) / 10
				resultTS := admit.Add(time.Duration(1+rng.Intn(24)) * time.Hour).Format(time.RFC3339)
				unit := test.unit
				code := test.code
				d.Labs = append(d.Labs, model.StgLab{
					LabID:       fmt.Sprintf("LAB%08d", labID),
					EncounterID: enc.EncounterID,
					LOINCCode:   &code,
					ResultValue: &val,
					Unit:        &unit,
					ResultTS:    &resultTS,
				})
				labID++
			}
		}
	}

	for i := 1; i <= 60; i++ {
		prv := providers[rng.Intn(len(providers))]
		role := staffRoles[rng.Intn(len(staffRoles))]
		hire := Anchor.AddDate(0, 0, -(30 + rng.Intn(3621))).Format("2006-01-02")
		d.Staff = append(d.Staff, model.StgStaff{
			StaffID:    fmt.Sprintf("STF%05d", i),
			ProviderID: prv.id,
			Role:       &role,
			HireDate:   &hire,
		})
	}

	return d
}

// WriteCSVDir writes the five raw extract files into dir.
func (d *Dataset) WriteCSVDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeCSV(filepath.Join(dir, "patients.csv"),
		[]string{"patient_id", "birth_year", "sex"},
		len(d.Patients), func(i int) []string {
			p := d.Patients[i]
			return []string{p.PatientID, intStr(p.BirthYear), derefStr(p.Sex)}
		}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "encounters.csv"),
		[]string{"encounter_id", "patient_id", "provider_id", "department_id", "admit_ts", "discharge_ts", "encounter_type"},
		len(d.Encounters), func(i int) []string {
			e := d.Encounters[i]
			return []string{e.EncounterID, e.PatientID, e.ProviderID, e.DepartmentID, e.AdmitTS, e.DischargeTS, e.EncounterType}
		}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "charges.csv"),
		[]string{"charge_id", "encounter_id", "cpt_code", "amount", "posted_ts"},
		len(d.Charges), func(i int) []string {
			c := d.Charges[i]
			return []string{c.ChargeID, c.EncounterID, derefStr(c.CPTCode), strconv.FormatFloat(c.Amount, 'f', 2, 64), derefStr(c.PostedTS)}
		}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "labs.csv"),
		[]string{"lab_id", "encounter_id", "loinc_code", "result_value", "unit", "result_ts"},
		len(d.Labs), func(i int) []string {
			l := d.Labs[i]
			return []string{l.LabID, l.EncounterID, derefStr(l.LOINCCode), floatStr(l.ResultValue), derefStr(l.Unit), derefStr(l.ResultTS)}
		}); err != nil {
		return err
	}

	return writeCSV(filepath.Join(dir, "staff.csv"),
		[]string{"staff_id", "provider_id", "role", "hire_date"},
		len(d.Staff), func(i int) []string {
			s := d.Staff[i]
			return []string{s.StaffID, s.ProviderID, derefStr(s.Role), derefStr(s.HireDate)}
		})
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intStr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatStr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
