package tk102

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	reportFields = 18
	reportTag    = "GPRMC"

	knotsToKMH = 1.852
	knotsToMPH = 1.151
)

var (
	headerRe  = regexp.MustCompile(`([0-9]{2})([0-9]{2})([0-9]{2})([0-9]{2})([0-9]{2})`)
	gpsDateRe = regexp.MustCompile(`([0-9]{2})([0-9]{2})([0-9]{2})`)
	gpsTimeRe = regexp.MustCompile(`([0-9]{2})([0-9]{2})([0-9]{2})\.([0-9]{3})`)
)

// TK102 recognizes the tracker's GPRMC report.
//
// Fields:
//
//	 0: header timestamp (yymmddhhmm)
//	 1: phone number
//	 2: GPRMC
//	 3: gps time (hhmmss.sss)
//	 4: status (A=active)
//	 5: latitude (ddmm.mmmm)
//	 6: N/S
//	 7: longitude (dddmm.mmmm)
//	 8: E/W
//	 9: speed over ground (knots)
//	10: bearing (deg, empty when unknown)
//	11: gps date (ddmmyy)
//	12-13: unused
//	14: mode + '*' + checksum
//	15: signal (F=full)
//	16: imei:<digits>
//	17: trailing field
func TK102(raw string) (Report, bool) {
	raw = strings.TrimSpace(raw)
	f := strings.Split(raw, ",")
	if len(f) != reportFields || f[2] != reportTag {
		return Report{}, false
	}
	rep, err := decodeTK102(raw, f)
	if err != nil {
		return Report{}, false
	}
	return rep, true
}

func decodeTK102(raw string, f []string) (Report, error) {
	datetime, err := replaceFirst(headerRe, f[0], func(m []string) string {
		return "20" + m[1] + "-" + m[2] + "-" + m[3] + " " + m[4] + ":" + m[5]
	})
	if err != nil {
		return Report{}, fmt.Errorf("header: %w", err)
	}
	gpsDate, err := replaceFirst(gpsDateRe, f[11], func(m []string) string {
		return "20" + m[3] + "-" + m[2] + "-" + m[1]
	})
	if err != nil {
		return Report{}, fmt.Errorf("gps date: %w", err)
	}
	gpsTime, err := replaceFirst(gpsTimeRe, f[3], func(m []string) string {
		return m[1] + ":" + m[2] + ":" + m[3] + "." + m[4]
	})
	if err != nil {
		return Report{}, fmt.Errorf("gps time: %w", err)
	}

	lat, err := FixGeo(f[5], f[6])
	if err != nil {
		return Report{}, err
	}
	lon, err := FixGeo(f[7], f[8])
	if err != nil {
		return Report{}, err
	}
	// Stationary or unfixed devices leave the course empty; report 0.
	bearing, _ := leadingInt(f[10])
	knots, err := strconv.ParseFloat(strings.TrimSpace(f[9]), 64)
	if err != nil {
		return Report{}, fmt.Errorf("speed: %w", err)
	}

	rep := Report{
		Raw:      raw,
		Datetime: datetime,
		Phone:    f[1],
		GPS: GPS{
			Date:   gpsDate,
			Time:   gpsTime,
			Signal: SignalLow,
			Fix:    FixInvalid,
		},
		Geo: Geo{
			Latitude:  lat,
			Longitude: lon,
			Bearing:   int(bearing),
		},
		Speed:    knotsSpeed(knots),
		IMEI:     strings.Replace(f[16], "imei:", "", 1),
		Checksum: Checksum(raw),
	}
	if f[15] == "F" {
		rep.GPS.Signal = SignalFull
	}
	if f[4] == "A" {
		rep.GPS.Fix = FixActive
	}
	return rep, nil
}

func knotsSpeed(knots float64) Speed {
	return Speed{
		Knots: roundTo(knots, 3),
		KMH:   roundTo(knots*knotsToKMH, 3),
		MPH:   roundTo(knots*knotsToMPH, 3),
	}
}

// replaceFirst rewrites the first match of re in s, keeping the text around it.
func replaceFirst(re *regexp.Regexp, s string, fn func(m []string) string) (string, error) {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return "", fmt.Errorf("%q does not match %s", s, re)
	}
	m := make([]string, len(loc)/2)
	for i := range m {
		m[i] = s[loc[2*i]:loc[2*i+1]]
	}
	return s[:loc[0]] + fn(m) + s[loc[1]:], nil
}
