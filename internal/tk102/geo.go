package tk102

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// minutesWidth is the length of the MM.MMMM tail of a coordinate.
const minutesWidth = 7

// FixGeo converts a ddmm.mmmm / dddmm.mmmm coordinate plus hemisphere letter
// into signed decimal degrees rounded to 6 places.
func FixGeo(coord string, hemi string) (float64, error) {
	coord = strings.TrimSpace(coord)
	if len(coord) <= minutesWidth {
		return 0, fmt.Errorf("geo: short coordinate %q", coord)
	}

	degPart := coord[:len(coord)-minutesWidth]
	minPart := coord[len(coord)-minutesWidth:]

	deg, err := strconv.Atoi(degPart)
	if err != nil {
		return 0, fmt.Errorf("geo: degrees %q: %w", degPart, err)
	}
	mins, err := strconv.ParseFloat(minPart, 64)
	if err != nil {
		return 0, fmt.Errorf("geo: minutes %q: %w", minPart, err)
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return roundTo(dec, 6), nil
}

// roundTo rounds half away from zero.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
