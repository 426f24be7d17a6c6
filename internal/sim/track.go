package sim

import (
	"math"
	"time"
)

type Track struct {
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusNm     float64
	Period       time.Duration
}

// Position returns a circular track around the configured center, plus the
// ground speed in knots needed to fly it.
func (s Track) Position(now time.Time) (latDeg, lonDeg, trackDeg, speedKt float64) {
	period := s.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusNm := s.RadiusNm
	if radiusNm <= 0 {
		radiusNm = 0.5
	}

	// Convert NM to degrees latitude (~60 NM per degree).
	radiusDeg := radiusNm / 60.0

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase

	// Clockwise seen from above: north of center at phase 0, heading east.
	latDeg = s.CenterLatDeg + radiusDeg*math.Cos(w)
	lonDeg = s.CenterLonDeg + (radiusDeg*math.Sin(w))/math.Cos(s.CenterLatDeg*math.Pi/180.0)

	trackDeg = math.Mod(phase*360+90, 360)
	speedKt = 2 * math.Pi * radiusNm / period.Hours()
	return latDeg, lonDeg, trackDeg, speedKt
}
