// Package etl implements the validate-and-build warehouse pipeline:
// normalize → validate → build → load, with an audit record opened at start
// and closed on every exit path.
package etl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/config"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/normalize"
)

// Normalizer maps one staging family onto the canonical batch so the
// downstream stages stay source-agnostic. Adding a source means adding one
// adapter here, not touching validation or build logic.
type Normalizer interface {
	Source() config.Source
	Normalize(ctx context.Context) (*model.Batch, error)
}

// NewNormalizer returns the adapter for the selected source.
func NewNormalizer(src config.Source, pool *pgxpool.Pool) Normalizer {
	if src == config.SourceFHIR {
		return &fhirSource{pool: pool}
	}
	return &csvSource{pool: pool}
}

// csvSource reads the CSV staging tables, whose columns already match the
// canonical shape; only the timestamps need parsing.
type csvSource struct {
	pool *pgxpool.Pool
}

func (s *csvSource) Source() config.Source { return config.SourceCSV }

func (s *csvSource) Normalize(ctx context.Context) (*model.Batch, error) {
	b := &model.Batch{}

	rows, err := s.pool.Query(ctx,
		"SELECT patient_id, birth_year, sex FROM stg_patients ORDER BY patient_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_patients: %w", err)
	}
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(&p.PatientID, &p.BirthYear, &p.Sex); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_patients: %w", err)
		}
		b.Patients = append(b.Patients, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_patients: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT encounter_id, patient_id, provider_id, department_id,
		        admit_ts, discharge_ts, encounter_type
		 FROM stg_encounters ORDER BY encounter_id`)
	if err != nil {
		return nil, fmt.Errorf("read stg_encounters: %w", err)
	}
	for rows.Next() {
		var e model.Encounter
		var admitRaw, dischargeRaw string
		if err := rows.Scan(&e.EncounterID, &e.PatientID, &e.ProviderID,
			&e.DepartmentID, &admitRaw, &dischargeRaw, &e.EncounterType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_encounters: %w", err)
		}
		if e.AdmitTS, err = normalize.ParseTimestamp(admitRaw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("encounter %s admit_ts: %w", e.EncounterID, err)
		}
		if e.DischargeTS, err = normalize.ParseTimestamp(dischargeRaw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("encounter %s discharge_ts: %w", e.EncounterID, err)
		}
		b.Encounters = append(b.Encounters, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_encounters: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT charge_id, encounter_id, amount FROM stg_charges ORDER BY charge_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_charges: %w", err)
	}
	for rows.Next() {
		var c model.Charge
		if err := rows.Scan(&c.ChargeID, &c.EncounterID, &c.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_charges: %w", err)
		}
		b.Charges = append(b.Charges, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_charges: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT lab_id, encounter_id FROM stg_labs ORDER BY lab_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_labs: %w", err)
	}
	for rows.Next() {
		var l model.Lab
		if err := rows.Scan(&l.LabID, &l.EncounterID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_labs: %w", err)
		}
		b.Labs = append(b.Labs, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_labs: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT staff_id, provider_id, role FROM stg_staff ORDER BY staff_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_staff: %w", err)
	}
	for rows.Next() {
		var st model.Staff
		var role *string
		if err := rows.Scan(&st.StaffID, &st.ProviderID, &role); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_staff: %w", err)
		}
		if role != nil {
			st.Role = *role
		}
		b.Staff = append(b.Staff, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_staff: %w", err)
	}

	return b, nil
}

// fhirSource reads the FHIR staging tables and remaps the resource-shaped
// columns onto the canonical ones. The FHIR feed carries no staff data, so
// the canonical staff set is empty, which downstream stages accept.
type fhirSource struct {
	pool *pgxpool.Pool
}

func (s *fhirSource) Source() config.Source { return config.SourceFHIR }

func (s *fhirSource) Normalize(ctx context.Context) (*model.Batch, error) {
	b := &model.Batch{}

	rows, err := s.pool.Query(ctx,
		"SELECT patient_id, gender, birth_date FROM stg_fhir_patient ORDER BY patient_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_fhir_patient: %w", err)
	}
	for rows.Next() {
		var id string
		var gender, birthDate *string
		if err := rows.Scan(&id, &gender, &birthDate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_fhir_patient: %w", err)
		}
		b.Patients = append(b.Patients, model.Patient{
			PatientID: id,
			BirthYear: normalize.BirthYear(birthDate),
			Sex:       normalize.Sex(gender),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_fhir_patient: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT encounter_id, patient_id, class_code, class_display,
		        start_ts, end_ts, department, provider_name
		 FROM stg_fhir_encounter ORDER BY encounter_id`)
	if err != nil {
		return nil, fmt.Errorf("read stg_fhir_encounter: %w", err)
	}
	for rows.Next() {
		var id string
		var patientID, classCode, classDisplay, startTS, endTS, department, providerName *string
		if err := rows.Scan(&id, &patientID, &classCode, &classDisplay,
			&startTS, &endTS, &department, &providerName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_fhir_encounter: %w", err)
		}
		e := model.Encounter{
			EncounterID:   id,
			PatientID:     deref(patientID),
			ProviderID:    normalize.ProviderID(providerName),
			DepartmentID:  deref(department),
			EncounterType: coalesce(classDisplay, classCode),
		}
		if e.AdmitTS, err = normalize.ParseTimestamp(deref(startTS)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("encounter %s start_ts: %w", id, err)
		}
		if e.DischargeTS, err = normalize.ParseTimestamp(deref(endTS)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("encounter %s end_ts: %w", id, err)
		}
		b.Encounters = append(b.Encounters, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_fhir_encounter: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT chargeitem_id, encounter_id, amount FROM stg_fhir_chargeitem ORDER BY chargeitem_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_fhir_chargeitem: %w", err)
	}
	for rows.Next() {
		var id string
		var encounterID *string
		var amount *float64
		if err := rows.Scan(&id, &encounterID, &amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_fhir_chargeitem: %w", err)
		}
		c := model.Charge{ChargeID: id, EncounterID: deref(encounterID)}
		if amount != nil {
			c.Amount = *amount
		}
		b.Charges = append(b.Charges, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_fhir_chargeitem: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT observation_id, encounter_id FROM stg_fhir_observation ORDER BY observation_id")
	if err != nil {
		return nil, fmt.Errorf("read stg_fhir_observation: %w", err)
	}
	for rows.Next() {
		var id string
		var encounterID *string
		if err := rows.Scan(&id, &encounterID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stg_fhir_observation: %w", err)
		}
		b.Labs = append(b.Labs, model.Lab{LabID: id, EncounterID: deref(encounterID)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stg_fhir_observation: %w", err)
	}

	// No staff resources in the FHIR feed: b.Staff stays empty.
	return b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func coalesce(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
