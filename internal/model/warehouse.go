package model

import "time"

// Warehouse row types, in COPY column order. The name columns on
// dim_department and dim_provider mirror the id until a richer source is
// wired in; that placeholder is deliberate.

type DimPatient struct {
	PatientID string
	BirthYear *int
	Sex       *string
}

func DimPatientColumns() []string { return []string{"patient_id", "birth_year", "sex"} }

func (d *DimPatient) CopyValues() []any { return []any{d.PatientID, d.BirthYear, d.Sex} }

type DimDepartment struct {
	DepartmentID   string
	DepartmentName string
}

func DimDepartmentColumns() []string { return []string{"department_id", "department_name"} }

func (d *DimDepartment) CopyValues() []any { return []any{d.DepartmentID, d.DepartmentName} }

type DimProvider struct {
	ProviderID   string
	ProviderName string
	DepartmentID string
}

func DimProviderColumns() []string {
	return []string{"provider_id", "provider_name", "department_id"}
}

func (d *DimProvider) CopyValues() []any {
	return []any{d.ProviderID, d.ProviderName, d.DepartmentID}
}

// DimTime is one calendar date appearing as an admit or discharge date.
// DOW is Monday=0 .. Sunday=6.
type DimTime struct {
	DateKey time.Time
	Year    int
	Month   int
	Day     int
	DOW     int
}

func DimTimeColumns() []string { return []string{"date_key", "year", "month", "day", "dow"} }

func (d *DimTime) CopyValues() []any {
	return []any{d.DateKey, d.Year, d.Month, d.Day, d.DOW}
}

// FactEncounter is one warehouse fact row. TotalCharges is zero-filled for
// encounters without charges; LengthOfStayDays is fractional, rounded to 2
// decimal places.
type FactEncounter struct {
	EncounterID      string
	PatientID        string
	ProviderID       string
	DepartmentID     string
	AdmitDate        time.Time
	DischargeDate    time.Time
	EncounterType    string
	LengthOfStayDays float64
	TotalCharges     float64
}

func FactEncounterColumns() []string {
	return []string{
		"encounter_id", "patient_id", "provider_id", "department_id",
		"admit_date", "discharge_date", "encounter_type",
		"length_of_stay_days", "total_charges",
	}
}

func (f *FactEncounter) CopyValues() []any {
	return []any{
		f.EncounterID, f.PatientID, f.ProviderID, f.DepartmentID,
		f.AdmitDate, f.DischargeDate, f.EncounterType,
		f.LengthOfStayDays, f.TotalCharges,
	}
}

// Warehouse is one fully-built generation, ready to replace the previous one.
type Warehouse struct {
	Patients    []DimPatient
	Departments []DimDepartment
	Providers   []DimProvider
	Dates       []DimTime
	Facts       []FactEncounter
}
