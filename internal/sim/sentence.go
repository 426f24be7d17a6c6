package sim

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Fix is one tracker report before it is put on the wire.
type Fix struct {
	At         time.Time
	LatDeg     float64
	LonDeg     float64
	SpeedKt    float64
	TrackDeg   float64
	Phone      string
	IMEI       string
	Active     bool
	FullSignal bool
}

// Sentence formats f the way a TK102 reports it:
//
//	yymmddhhmm,phone,GPRMC,hhmmss.sss,A,ddmm.mmmm,N,dddmm.mmmm,E,kt,trk,ddmmyy,,,A*XX,F,imei:N,seq
//
// XX is the XOR of the text between "GPRMC" and "*", inclusive of "GPRMC".
func Sentence(f Fix, seq int) string {
	at := f.At.UTC()

	status := "V"
	if f.Active {
		status = "A"
	}
	signal := "L"
	if f.FullSignal {
		signal = "F"
	}
	lat, ns := coordinate(f.LatDeg, 2, "N", "S")
	lon, ew := coordinate(f.LonDeg, 3, "E", "W")

	body := strings.Join([]string{
		"GPRMC",
		at.Format("150405.000"),
		status,
		lat, ns,
		lon, ew,
		fmt.Sprintf("%.2f", math.Max(f.SpeedKt, 0)),
		fmt.Sprintf("%.2f", math.Mod(math.Max(f.TrackDeg, 0), 360)),
		at.Format("020106"),
		"", "",
		"A",
	}, ",")

	return strings.Join([]string{
		at.Format("0601021504"),
		f.Phone,
		fmt.Sprintf("%s*%02X", body, xor(body)),
		signal,
		"imei:" + f.IMEI,
		fmt.Sprintf("%03d", seq%1000),
	}, ",")
}

// coordinate renders abs(deg) as d..dmm.mmmm with width degree digits.
func coordinate(deg float64, width int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	whole := int(deg)
	// Minutes in units of 1e-4.
	m := int(math.Round((deg - float64(whole)) * 60 * 10000))
	if m >= 60*10000 {
		whole++
		m -= 60 * 10000
	}
	return fmt.Sprintf("%0*d%02d.%04d", width, whole, m/10000, m%10000), hemi
}

func xor(s string) byte {
	ck := byte(0)
	for i := 0; i < len(s); i++ {
		ck ^= s[i]
	}
	return ck
}
