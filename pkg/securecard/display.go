package securecard

import (
	"fmt"
	"io"
)

// PrintRecord writes the record's fields, one per line, in key order.
func PrintRecord(w io.Writer, label string, rec Record) {
	fmt.Fprintf(w, "  %s record (%d fields):\n", label, len(rec))
	width := 0
	for _, k := range rec.Keys() {
		if len(k) > width {
			width = len(k)
		}
	}
	for _, k := range rec.Keys() {
		v, _ := rec.String(k)
		fmt.Fprintf(w, "    %-*s  %s\n", width+1, k+":", v)
	}
}

// PrintProbe writes the result of ProbeProfiles.
func PrintProbe(w io.Writer, results []DetectResult) {
	for _, r := range results {
		switch {
		case r.Found:
			fmt.Fprintf(w, "  %-12s selected\n", r.Profile)
		case r.SW != 0:
			fmt.Fprintf(w, "  %-12s rejected (SW=%04X %s)\n", r.Profile, r.SW, swDescription(r.SW))
		default:
			fmt.Fprintf(w, "  %-12s error: %v\n", r.Profile, r.Err)
		}
	}
}
