package tk102

import (
	"fmt"
	"math"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// NMEARMC recognizes a bare NMEA RMC sentence ("$GPRMC,...*hh"), which some
// trackers send before they are configured for the TK102 report format.
// The checksum is verified by the NMEA decoder, so a match always has
// Checksum=true. Phone and IMEI are not part of the sentence.
func NMEARMC(raw string) (Report, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "$") {
		return Report{}, false
	}
	sentence, err := nmea.Parse(raw)
	if err != nil || sentence.DataType() != nmea.TypeRMC {
		return Report{}, false
	}
	m, ok := sentence.(nmea.RMC)
	if !ok || !m.Date.Valid || !m.Time.Valid {
		return Report{}, false
	}
	if math.IsNaN(m.Latitude) || math.IsNaN(m.Longitude) {
		return Report{}, false
	}

	date := fmt.Sprintf("20%02d-%02d-%02d", m.Date.YY, m.Date.MM, m.Date.DD)
	rep := Report{
		Raw:      raw,
		Datetime: fmt.Sprintf("%s %02d:%02d", date, m.Time.Hour, m.Time.Minute),
		GPS: GPS{
			Date:   date,
			Time:   fmt.Sprintf("%02d:%02d:%02d.%03d", m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond),
			Signal: SignalLow,
			Fix:    FixInvalid,
		},
		Geo: Geo{
			Latitude:  roundTo(m.Latitude, 6),
			Longitude: roundTo(m.Longitude, 6),
			Bearing:   int(m.Course),
		},
		Speed:    knotsSpeed(m.Speed),
		Checksum: true,
	}
	if m.Validity == nmea.ValidRMC {
		rep.GPS.Fix = FixActive
		rep.GPS.Signal = SignalFull
	}
	return rep, true
}
