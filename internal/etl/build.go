package etl

import (
	"math"
	"strconv"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/normalize"
)

// Build derives the warehouse generation from a validated batch. It is a
// pure function: dimensions and fact are computed entirely in memory, in a
// stable order, so repeated runs over the same batch yield the same rows.
func Build(b *model.Batch) *model.Warehouse {
	w := &model.Warehouse{}

	seenPatient := make(map[string]bool, len(b.Patients))
	for _, p := range b.Patients {
		key := p.PatientID + "\x00" + intKey(p.BirthYear) + "\x00" + strKey(p.Sex)
		if seenPatient[key] {
			continue
		}
		seenPatient[key] = true
		w.Patients = append(w.Patients, model.DimPatient{
			PatientID: p.PatientID,
			BirthYear: p.BirthYear,
			Sex:       p.Sex,
		})
	}

	// Department and provider dimensions are projections of the encounter
	// table; the name columns mirror the id until a richer source exists.
	seenDept := make(map[string]bool)
	seenProv := make(map[string]bool)
	for _, e := range b.Encounters {
		if !seenDept[e.DepartmentID] {
			seenDept[e.DepartmentID] = true
			w.Departments = append(w.Departments, model.DimDepartment{
				DepartmentID:   e.DepartmentID,
				DepartmentName: e.DepartmentID,
			})
		}
		provKey := e.ProviderID + "\x00" + e.DepartmentID
		if !seenProv[provKey] {
			seenProv[provKey] = true
			w.Providers = append(w.Providers, model.DimProvider{
				ProviderID:   e.ProviderID,
				ProviderName: e.ProviderID,
				DepartmentID: e.DepartmentID,
			})
		}
	}

	// One dim_time row per distinct admit or discharge calendar date.
	seenDate := make(map[string]bool)
	addDate := func(key model.DimTime) {
		k := key.DateKey.Format("2006-01-02")
		if seenDate[k] {
			return
		}
		seenDate[k] = true
		w.Dates = append(w.Dates, key)
	}
	for _, e := range b.Encounters {
		admit := normalize.DateKey(e.AdmitTS)
		discharge := normalize.DateKey(e.DischargeTS)
		addDate(model.DimTime{
			DateKey: admit,
			Year:    admit.Year(),
			Month:   int(admit.Month()),
			Day:     admit.Day(),
			DOW:     normalize.ISOWeekday(admit),
		})
		addDate(model.DimTime{
			DateKey: discharge,
			Year:    discharge.Year(),
			Month:   int(discharge.Month()),
			Day:     discharge.Day(),
			DOW:     normalize.ISOWeekday(discharge),
		})
	}

	// Charge totals per encounter; encounters without charges zero-fill.
	totals := make(map[string]float64, len(b.Encounters))
	for _, c := range b.Charges {
		totals[c.EncounterID] += c.Amount
	}

	for _, e := range b.Encounters {
		los := e.DischargeTS.Sub(e.AdmitTS).Seconds() / 86400.0
		w.Facts = append(w.Facts, model.FactEncounter{
			EncounterID:      e.EncounterID,
			PatientID:        e.PatientID,
			ProviderID:       e.ProviderID,
			DepartmentID:     e.DepartmentID,
			AdmitDate:        normalize.DateKey(e.AdmitTS),
			DischargeDate:    normalize.DateKey(e.DischargeTS),
			EncounterType:    e.EncounterType,
			LengthOfStayDays: round2(los),
			TotalCharges:     round2(totals[e.EncounterID]),
		})
	}

	return w
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func intKey(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strKey(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
