// Package fhir decodes the subset of FHIR R4 bundle resources the warehouse
// consumes (Patient, Encounter, Observation, ChargeItem) into flat staging
// records. Other resource types in a bundle are ignored.
package fhir

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/model"
)

// Records holds the flattened resources from one or more bundles.
type Records struct {
	Patients     []model.StgFHIRPatient
	Encounters   []model.StgFHIREncounter
	Observations []model.StgFHIRObservation
	ChargeItems  []model.StgFHIRChargeItem
}

type bundle struct {
	ResourceType string  `json:"resourceType"`
	Entry        []entry `json:"entry"`
}

type entry struct {
	Resource json.RawMessage `json:"resource"`
}

type reference struct {
	Reference *string `json:"reference"`
}

type coding struct {
	System  *string `json:"system"`
	Code    *string `json:"code"`
	Display *string `json:"display"`
}

type codeableConcept struct {
	Coding []coding `json:"coding"`
	Text   *string  `json:"text"`
}

type period struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type valueQuantity struct {
	Value *float64 `json:"value"`
	Unit  *string  `json:"unit"`
}

type money struct {
	Value    *float64 `json:"value"`
	Currency *string  `json:"currency"`
}

type patientResource struct {
	ID         string `json:"id"`
	Identifier []struct {
		Value *string `json:"value"`
	} `json:"identifier"`
	Name []struct {
		Given  []string `json:"given"`
		Family *string  `json:"family"`
	} `json:"name"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birthDate"`
}

type encounterResource struct {
	ID      string     `json:"id"`
	Status  *string    `json:"status"`
	Class   *coding    `json:"class"`
	Subject *reference `json:"subject"`
	Period  *period    `json:"period"`
	Location []struct {
		Location *struct {
			Display *string `json:"display"`
		} `json:"location"`
	} `json:"location"`
	Participant []struct {
		Individual *struct {
			Display *string `json:"display"`
		} `json:"individual"`
	} `json:"participant"`
}

type observationResource struct {
	ID                string           `json:"id"`
	Subject           *reference       `json:"subject"`
	Encounter         *reference       `json:"encounter"`
	Code              *codeableConcept `json:"code"`
	EffectiveDateTime *string          `json:"effectiveDateTime"`
	ValueQuantity     *valueQuantity   `json:"valueQuantity"`
}

type chargeItemResource struct {
	ID                 string           `json:"id"`
	Subject            *reference       `json:"subject"`
	Context            *reference       `json:"context"`
	Code               *codeableConcept `json:"code"`
	OccurrenceDateTime *string          `json:"occurrenceDateTime"`
	Quantity           *valueQuantity   `json:"quantity"`
	PriceOverride      *money           `json:"priceOverride"`
}

// ParseBundle decodes one bundle and appends its resources to rec.
func ParseBundle(r io.Reader, rec *Records) error {
	var b bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return fmt.Errorf("decode bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return fmt.Errorf("not a FHIR Bundle (resourceType=%q)", b.ResourceType)
	}
	if len(b.Entry) == 0 {
		return fmt.Errorf("bundle has no entries")
	}

	for i, ent := range b.Entry {
		if len(ent.Resource) == 0 {
			continue
		}
		var peek struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(ent.Resource, &peek); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}

		switch peek.ResourceType {
		case "Patient":
			var res patientResource
			if err := json.Unmarshal(ent.Resource, &res); err != nil {
				return fmt.Errorf("entry %d (Patient): %w", i, err)
			}
			rec.Patients = append(rec.Patients, flattenPatient(&res))
		case "Encounter":
			var res encounterResource
			if err := json.Unmarshal(ent.Resource, &res); err != nil {
				return fmt.Errorf("entry %d (Encounter): %w", i, err)
			}
			rec.Encounters = append(rec.Encounters, flattenEncounter(&res))
		case "Observation":
			var res observationResource
			if err := json.Unmarshal(ent.Resource, &res); err != nil {
				return fmt.Errorf("entry %d (Observation): %w", i, err)
			}
			rec.Observations = append(rec.Observations, flattenObservation(&res))
		case "ChargeItem":
			var res chargeItemResource
			if err := json.Unmarshal(ent.Resource, &res); err != nil {
				return fmt.Errorf("entry %d (ChargeItem): %w", i, err)
			}
			rec.ChargeItems = append(rec.ChargeItems, flattenChargeItem(&res))
		}
	}
	return nil
}

func flattenPatient(res *patientResource) model.StgFHIRPatient {
	p := model.StgFHIRPatient{
		PatientID: res.ID,
		Gender:    res.Gender,
		BirthDate: res.BirthDate,
	}
	if len(res.Identifier) > 0 {
		p.MRN = res.Identifier[0].Value
	}
	if len(res.Name) > 0 {
		n := res.Name[0]
		parts := append([]string{}, n.Given...)
		if n.Family != nil {
			parts = append(parts, *n.Family)
		}
		if full := strings.TrimSpace(strings.Join(parts, " ")); full != "" {
			p.Name = &full
		}
	}
	return p
}

func flattenEncounter(res *encounterResource) model.StgFHIREncounter {
	e := model.StgFHIREncounter{
		EncounterID: res.ID,
		Status:      res.Status,
		PatientID:   refID(res.Subject),
	}
	if res.Class != nil {
		e.ClassSystem = res.Class.System
		e.ClassCode = res.Class.Code
		e.ClassDisplay = res.Class.Display
	}
	if res.Period != nil {
		e.StartTS = res.Period.Start
		e.EndTS = res.Period.End
	}
	if len(res.Location) > 0 && res.Location[0].Location != nil {
		e.Department = res.Location[0].Location.Display
	}
	if len(res.Participant) > 0 && res.Participant[0].Individual != nil {
		e.ProviderName = res.Participant[0].Individual.Display
	}
	return e
}

func flattenObservation(res *observationResource) model.StgFHIRObservation {
	o := model.StgFHIRObservation{
		ObservationID: res.ID,
		PatientID:     refID(res.Subject),
		EncounterID:   refID(res.Encounter),
		EffectiveTS:   res.EffectiveDateTime,
	}
	o.LOINCSystem, o.LOINCCode, o.LOINCDisplay = codingPick(res.Code)
	if res.ValueQuantity != nil {
		o.Value = res.ValueQuantity.Value
		o.Unit = res.ValueQuantity.Unit
	}
	return o
}

func flattenChargeItem(res *chargeItemResource) model.StgFHIRChargeItem {
	c := model.StgFHIRChargeItem{
		ChargeItemID: res.ID,
		PatientID:    refID(res.Subject),
		EncounterID:  refID(res.Context),
		OccurrenceTS: res.OccurrenceDateTime,
	}
	c.CPTSystem, c.CPTCode, c.CPTDisplay = codingPick(res.Code)
	if res.Quantity != nil {
		c.Quantity = res.Quantity.Value
	}
	if res.PriceOverride != nil {
		c.Amount = res.PriceOverride.Value
		c.Currency = res.PriceOverride.Currency
	}
	return c
}

// refID reduces "Patient/patient-001" to "patient-001". Bare ids pass through.
func refID(ref *reference) *string {
	if ref == nil || ref.Reference == nil {
		return nil
	}
	s := *ref.Reference
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	if s == "" {
		return nil
	}
	return &s
}

// codingPick pulls (system, code, display) from the first coding, with the
// concept's text as display fallback.
func codingPick(cc *codeableConcept) (system, code, display *string) {
	if cc == nil {
		return nil, nil, nil
	}
	if len(cc.Coding) > 0 {
		c0 := cc.Coding[0]
		system, code, display = c0.System, c0.Code, c0.Display
	}
	if display == nil {
		display = cc.Text
	}
	return system, code, display
}
