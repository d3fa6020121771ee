package etl

import (
	"fmt"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// ValidationError identifies the first data-quality check that failed.
type ValidationError struct {
	Check  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s]: %s", e.Check, e.Detail)
}

// Validate runs the fixed, ordered sequence of data-quality checks over the
// canonical batch and returns the first violation. Every check scans its
// whole table; order only decides which failure is reported first. No
// warehouse mutation happens before or during validation.
func Validate(b *model.Batch) error {
	if err := uniquePatientIDs(b); err != nil {
		return err
	}
	if err := uniqueEncounterIDs(b); err != nil {
		return err
	}
	// The negative-amount check is skipped entirely for sources with no
	// charge data, not merely passed.
	if len(b.Charges) > 0 {
		if err := noNegativeAmounts(b); err != nil {
			return err
		}
	}
	if err := dischargeNotBeforeAdmit(b); err != nil {
		return err
	}
	if err := chargesReferenceEncounters(b); err != nil {
		return err
	}
	return labsReferenceEncounters(b)
}

func uniquePatientIDs(b *model.Batch) error {
	seen := make(map[string]bool, len(b.Patients))
	var dups int
	var first string
	for _, p := range b.Patients {
		if seen[p.PatientID] {
			if dups == 0 {
				first = p.PatientID
			}
			dups++
		}
		seen[p.PatientID] = true
	}
	if dups > 0 {
		return &ValidationError{
			Check:  "unique_patient_id",
			Detail: fmt.Sprintf("duplicate patient_id in patients: %d duplicate(s), first %q", dups, first),
		}
	}
	return nil
}

func uniqueEncounterIDs(b *model.Batch) error {
	seen := make(map[string]bool, len(b.Encounters))
	var dups int
	var first string
	for _, e := range b.Encounters {
		if seen[e.EncounterID] {
			if dups == 0 {
				first = e.EncounterID
			}
			dups++
		}
		seen[e.EncounterID] = true
	}
	if dups > 0 {
		return &ValidationError{
			Check:  "unique_encounter_id",
			Detail: fmt.Sprintf("duplicate encounter_id in encounters: %d duplicate(s), first %q", dups, first),
		}
	}
	return nil
}

func noNegativeAmounts(b *model.Batch) error {
	var bad int
	var first string
	for _, c := range b.Charges {
		if c.Amount < 0 {
			if bad == 0 {
				first = c.ChargeID
			}
			bad++
		}
	}
	if bad > 0 {
		return &ValidationError{
			Check:  "no_negative_charges",
			Detail: fmt.Sprintf("negative charge amounts detected: %d row(s), first %q", bad, first),
		}
	}
	return nil
}

func dischargeNotBeforeAdmit(b *model.Batch) error {
	var bad int
	var first string
	for _, e := range b.Encounters {
		if e.DischargeTS.Before(e.AdmitTS) {
			if bad == 0 {
				first = e.EncounterID
			}
			bad++
		}
	}
	if bad > 0 {
		return &ValidationError{
			Check:  "discharge_after_admit",
			Detail: fmt.Sprintf("discharge before admit detected: %d encounter(s), first %q", bad, first),
		}
	}
	return nil
}

func chargesReferenceEncounters(b *model.Batch) error {
	encIDs := encounterIDSet(b)
	var bad int
	var first string
	for _, c := range b.Charges {
		if !encIDs[c.EncounterID] {
			if bad == 0 {
				first = c.ChargeID
			}
			bad++
		}
	}
	if bad > 0 {
		return &ValidationError{
			Check:  "charges_reference_encounters",
			Detail: fmt.Sprintf("charges reference missing encounters: %d row(s), first %q", bad, first),
		}
	}
	return nil
}

func labsReferenceEncounters(b *model.Batch) error {
	encIDs := encounterIDSet(b)
	var bad int
	var first string
	for _, l := range b.Labs {
		if !encIDs[l.EncounterID] {
			if bad == 0 {
				first = l.LabID
			}
			bad++
		}
	}
	if bad > 0 {
		return &ValidationError{
			Check:  "labs_reference_encounters",
			Detail: fmt.Sprintf("labs reference missing encounters: %d row(s), first %q", bad, first),
		}
	}
	return nil
}

func encounterIDSet(b *model.Batch) map[string]bool {
	set := make(map[string]bool, len(b.Encounters))
	for _, e := range b.Encounters {
		set[e.EncounterID] = true
	}
	return set
}
