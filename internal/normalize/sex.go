package normalize

import "strings"

// Sex maps a FHIR administrative gender onto the canonical one-letter code.
// Unmapped values (including "unknown") fail closed to nil rather than
// aborting the run; the mapping table is the authority, not the input.
func Sex(gender *string) *string {
	if gender == nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(*gender)) {
	case "male":
		return ptr("M")
	case "female":
		return ptr("F")
	case "other":
		return ptr("O")
	}
	return nil
}

func ptr(s string) *string { return &s }
