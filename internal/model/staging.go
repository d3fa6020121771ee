package model

import "github.com/google/uuid"

// Staging row types in COPY column order. The CSV family mirrors the raw
// extract columns; the FHIR family mirrors the flattened bundle resources
// and carries the originating file plus the staging batch id.

type StgPatient struct {
	PatientID string
	BirthYear *int
	Sex       *string
}

func StgPatientColumns() []string { return []string{"patient_id", "birth_year", "sex"} }

func (r *StgPatient) CopyValues() []any { return []any{r.PatientID, r.BirthYear, r.Sex} }

type StgEncounter struct {
	EncounterID   string
	PatientID     string
	ProviderID    string
	DepartmentID  string
	AdmitTS       string
	DischargeTS   string
	EncounterType string
}

func StgEncounterColumns() []string {
	return []string{
		"encounter_id", "patient_id", "provider_id", "department_id",
		"admit_ts", "discharge_ts", "encounter_type",
	}
}

func (r *StgEncounter) CopyValues() []any {
	return []any{
		r.EncounterID, r.PatientID, r.ProviderID, r.DepartmentID,
		r.AdmitTS, r.DischargeTS, r.EncounterType,
	}
}

type StgCharge struct {
	ChargeID    string
	EncounterID string
	CPTCode     *string
	Amount      float64
	PostedTS    *string
}

func StgChargeColumns() []string {
	return []string{"charge_id", "encounter_id", "cpt_code", "amount", "posted_ts"}
}

func (r *StgCharge) CopyValues() []any {
	return []any{r.ChargeID, r.EncounterID, r.CPTCode, r.Amount, r.PostedTS}
}

type StgLab struct {
	LabID       string
	EncounterID string
	LOINCCode   *string
	ResultValue *float64
	Unit        *string
	ResultTS    *string
}

func StgLabColumns() []string {
	return []string{"lab_id", "encounter_id", "loinc_code", "result_value", "unit", "result_ts"}
}

func (r *StgLab) CopyValues() []any {
	return []any{r.LabID, r.EncounterID, r.LOINCCode, r.ResultValue, r.Unit, r.ResultTS}
}

type StgStaff struct {
	StaffID    string
	ProviderID string
	Role       *string
	HireDate   *string
}

func StgStaffColumns() []string {
	return []string{"staff_id", "provider_id", "role", "hire_date"}
}

func (r *StgStaff) CopyValues() []any {
	return []any{r.StaffID, r.ProviderID, r.Role, r.HireDate}
}

type StgFHIRPatient struct {
	PatientID     string
	MRN           *string
	Name          *string
	Gender        *string
	BirthDate     *string
	SourceFile    string
	IngestBatchID uuid.UUID
}

func StgFHIRPatientColumns() []string {
	return []string{"patient_id", "mrn", "name", "gender", "birth_date", "source_file", "ingest_batch_id"}
}

func (r *StgFHIRPatient) CopyValues() []any {
	return []any{r.PatientID, r.MRN, r.Name, r.Gender, r.BirthDate, r.SourceFile, r.IngestBatchID}
}

type StgFHIREncounter struct {
	EncounterID   string
	PatientID     *string
	Status        *string
	ClassSystem   *string
	ClassCode     *string
	ClassDisplay  *string
	StartTS       *string
	EndTS         *string
	Department    *string
	ProviderName  *string
	SourceFile    string
	IngestBatchID uuid.UUID
}

func StgFHIREncounterColumns() []string {
	return []string{
		"encounter_id", "patient_id", "status", "class_system", "class_code",
		"class_display", "start_ts", "end_ts", "department", "provider_name",
		"source_file", "ingest_batch_id",
	}
}

func (r *StgFHIREncounter) CopyValues() []any {
	return []any{
		r.EncounterID, r.PatientID, r.Status, r.ClassSystem, r.ClassCode,
		r.ClassDisplay, r.StartTS, r.EndTS, r.Department, r.ProviderName,
		r.SourceFile, r.IngestBatchID,
	}
}

type StgFHIRObservation struct {
	ObservationID string
	PatientID     *string
	EncounterID   *string
	LOINCSystem   *string
	LOINCCode     *string
	LOINCDisplay  *string
	EffectiveTS   *string
	Value         *float64
	Unit          *string
	SourceFile    string
	IngestBatchID uuid.UUID
}

func StgFHIRObservationColumns() []string {
	return []string{
		"observation_id", "patient_id", "encounter_id", "loinc_system",
		"loinc_code", "loinc_display", "effective_ts", "value", "unit",
		"source_file", "ingest_batch_id",
	}
}

func (r *StgFHIRObservation) CopyValues() []any {
	return []any{
		r.ObservationID, r.PatientID, r.EncounterID, r.LOINCSystem,
		r.LOINCCode, r.LOINCDisplay, r.EffectiveTS, r.Value, r.Unit,
		r.SourceFile, r.IngestBatchID,
	}
}

type StgFHIRChargeItem struct {
	ChargeItemID  string
	PatientID     *string
	EncounterID   *string
	CPTSystem     *string
	CPTCode       *string
	CPTDisplay    *string
	OccurrenceTS  *string
	Quantity      *float64
	Amount        *float64
	Currency      *string
	SourceFile    string
	IngestBatchID uuid.UUID
}

func StgFHIRChargeItemColumns() []string {
	return []string{
		"chargeitem_id", "patient_id", "encounter_id", "cpt_system",
		"cpt_code", "cpt_display", "occurrence_ts", "quantity", "amount",
		"currency", "source_file", "ingest_batch_id",
	}
}

func (r *StgFHIRChargeItem) CopyValues() []any {
	return []any{
		r.ChargeItemID, r.PatientID, r.EncounterID, r.CPTSystem,
		r.CPTCode, r.CPTDisplay, r.OccurrenceTS, r.Quantity, r.Amount,
		r.Currency, r.SourceFile, r.IngestBatchID,
	}
}
