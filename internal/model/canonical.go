package model

import "time"

// The canonical batch is the source-agnostic in-memory shape every
// normalizer produces. Downstream stages (validate, build, load) never see
// source-specific columns.

// Patient is one canonical patient record.
type Patient struct {
	PatientID string
	BirthYear *int
	Sex       *string // M, F, O, or nil
}

// Encounter is one canonical encounter. Timestamps are already parsed;
// normalizers fail the run on unparseable values.
type Encounter struct {
	EncounterID   string
	PatientID     string
	ProviderID    string
	DepartmentID  string
	AdmitTS       time.Time
	DischargeTS   time.Time
	EncounterType string
}

// Charge is one canonical charge line.
type Charge struct {
	ChargeID    string
	EncounterID string
	Amount      float64
}

// Lab is one canonical lab/observation record. Only its referential
// integrity matters to the warehouse build; result fields stay in staging.
type Lab struct {
	LabID       string
	EncounterID string
}

// Staff is one canonical staff record. Optional: absent for the FHIR source.
type Staff struct {
	StaffID    string
	ProviderID string
	Role       string
}

// Batch bundles the five canonical tables for one pipeline run.
type Batch struct {
	Patients   []Patient
	Encounters []Encounter
	Charges    []Charge
	Labs       []Lab
	Staff      []Staff
}
