// mkfixture generates a synthetic raw extract directory for local runs and
// demos. The output is deterministic for a given seed.
// Usage: go run ./cmd/mkfixture --out testdata/raw --seed 42 --patients 200 --encounters 800
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/synth"
)

func main() {
	out := flag.String("out", "testdata/raw", "output directory for the CSV extracts")
	seed := flag.Int64("seed", 42, "random seed")
	patients := flag.Int("patients", 200, "number of patients")
	encounters := flag.Int("encounters", 800, "number of encounters")
	flag.Parse()

	if *patients < 1 || *encounters < 1 {
		fmt.Fprintln(os.Stderr, "patients and encounters must be positive")
		os.Exit(1)
	}

	d := synth.Generate(*seed, *patients, *encounters)
	if err := d.WriteCSVDir(*out); err != nil {
		fmt.Fprintf(os.Stderr, "write fixtures: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote fixtures to %s\n", *out)
	fmt.Printf("  patients:   %d\n", len(d.Patients))
	fmt.Printf("  encounters: %d\n", len(d.Encounters))
	fmt.Printf("  charges:    %d\n", len(d.Charges))
	fmt.Printf("  labs:       %d\n", len(d.Labs))
	fmt.Printf("  staff:      %d\n", len(d.Staff))
}
