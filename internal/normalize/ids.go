package normalize

import (
	"crypto/sha256"
	"fmt"
)

// UnknownProviderID is used when an encounter names no provider at all, so
// the fact row's provider FK still resolves to a dimension row.
const UnknownProviderID = "prv-unknown"

// ProviderID synthesizes a stable provider id from a free-text provider
// name. The FHIR source carries only display names; hashing the normalized
// name keeps the id deterministic across runs and bundles.
func ProviderID(name *string) string {
	n := NormalizeName(name)
	if n == nil {
		return UnknownProviderID
	}
	sum := sha256.Sum256([]byte(*n))
	return fmt.Sprintf("prv-%x", sum[:6])
}
