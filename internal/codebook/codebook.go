// Package codebook holds the closed, compiled-in table mapping a 5-field
// status descriptor to an integer status code. It is pure data: the table
// is built once at init time and consulted read-only thereafter.
package codebook

import "strconv"

// Descriptor is the 5-tuple the generator derives from one closed candle:
// which of long/medium sits above the other, the medium and long MA
// directions, the candle color, and the long-convergence class.
type Descriptor struct {
	LongAbove   string // "L" or "M"
	MediumDir   string // "U", "D", or "F"
	LongDir     string // "U", "D", or "F"
	Color       string // "G", "R", or "E"
	Convergence string // "D", "C", or "N"
}

// String renders the dash-joined 5-field form the core trader's codebook
// keys on: "{A}-{B}-{C}-{D}-{E}".
func (d Descriptor) String() string {
	return d.LongAbove + "-" + d.MediumDir + "-" + d.LongDir + "-" + d.Color + "-" + d.Convergence
}

// table is the closed set of recognized descriptors. Entries absent from
// this table have no status code; Lookup reports that with ok=false.
var table = buildTable()

// Lookup returns the status code for a descriptor and whether it was
// found. Absent descriptors yield ("", false); callers render that as the
// empty status_code string per the spec.
func Lookup(d Descriptor) (string, bool) {
	code, ok := table[d.String()]
	return code, ok
}

// Size reports how many descriptors the codebook recognizes.
func Size() int { return len(table) }

func buildTable() map[string]string {
	raw := map[string]int{
		"L-U-U-G-D": 1, "L-U-U-G-N": 2, "L-U-U-R-C": 3, "L-U-U-E-D": 4, "L-U-U-E-N": 5,
		"L-U-D-G-C": 6, "L-U-D-R-D": 7, "L-U-D-R-N": 8, "L-U-D-E-C": 9,
		"L-U-F-G-D": 10, "L-U-F-G-N": 11, "L-U-F-R-C": 12, "L-U-F-E-D": 13, "L-U-F-E-N": 14,
		"L-D-U-G-C": 15, "L-D-U-R-D": 16, "L-D-U-R-N": 17, "L-D-U-E-C": 18,
		"L-D-D-G-D": 19, "L-D-D-G-N": 20, "L-D-D-R-C": 21, "L-D-D-E-D": 22, "L-D-D-E-N": 23,
		"L-D-F-G-C": 24, "L-D-F-R-D": 25, "L-D-F-R-N": 26, "L-D-F-E-C": 27,
		"L-F-U-G-D": 28, "L-F-U-G-N": 29, "L-F-U-R-C": 30, "L-F-U-E-D": 31, "L-F-U-E-N": 32,
		"L-F-D-G-C": 33, "L-F-D-R-D": 34, "L-F-D-R-N": 35, "L-F-D-E-C": 36,
		"L-F-F-G-D": 37, "L-F-F-G-N": 38, "L-F-F-R-C": 39, "L-F-F-E-D": 40, "L-F-F-E-N": 41,
		"M-U-U-G-C": 42, "M-U-U-R-D": 43, "M-U-U-R-N": 44, "M-U-U-E-C": 45,
		"M-U-D-G-D": 46, "M-U-D-G-N": 47, "M-U-D-R-C": 48, "M-U-D-E-D": 49, "M-U-D-E-N": 50,
		"M-U-F-G-C": 51, "M-U-F-R-D": 52, "M-U-F-R-N": 53, "M-U-F-E-C": 54,
		"M-D-U-G-D": 55, "M-D-U-G-N": 56, "M-D-U-R-C": 57, "M-D-U-E-D": 58, "M-D-U-E-N": 59,
		"M-D-D-G-C": 60, "M-D-D-R-D": 61, "M-D-D-R-N": 62, "M-D-D-E-C": 63,
		"M-D-F-G-D": 64, "M-D-F-G-N": 65, "M-D-F-R-C": 66, "M-D-F-E-D": 67, "M-D-F-E-N": 68,
		"M-F-U-G-C": 69, "M-F-U-R-D": 70, "M-F-U-R-N": 71, "M-F-U-E-C": 72,
		"M-F-D-G-D": 73, "M-F-D-G-N": 74, "M-F-D-R-C": 75, "M-F-D-E-D": 76, "M-F-D-E-N": 77,
		"M-F-F-G-C": 78, "M-F-F-R-D": 79, "M-F-F-R-N": 80, "M-F-F-E-C": 81,
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = strconv.Itoa(v)
	}
	return out
}
