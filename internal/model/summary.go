package model

import "time"

// RunSummary captures metrics from a single validate-and-build run.
type RunSummary struct {
	RunID  int64
	Source string

	Patients   int
	Encounters int
	Charges    int
	Labs       int
	Staff      int

	DimPatientRows    int
	DimDepartmentRows int
	DimProviderRows   int
	DimTimeRows       int
	FactRows          int

	DurationNormalize time.Duration
	DurationValidate  time.Duration
	DurationBuild     time.Duration
	DurationLoad      time.Duration
	DurationTotal     time.Duration
}
