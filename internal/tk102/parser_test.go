package tk102

import (
	"strings"
	"testing"
)

const sampleSentence = "1203292316,0031698765432,GPRMC,211657.000,A,5213.0247,N,00516.7757,E,0.00,273.30,290312,,,A*62,F,imei:123456789012345,123"

func TestTK102_SampleSentence(t *testing.T) {
	rep, ok := Parse(sampleSentence + "\r\n")
	if !ok {
		t.Fatalf("expected match")
	}

	if rep.Raw != sampleSentence {
		t.Fatalf("raw=%q want trimmed sentence", rep.Raw)
	}
	if rep.Datetime != "2012-03-29 23:16" {
		t.Fatalf("datetime=%q want %q", rep.Datetime, "2012-03-29 23:16")
	}
	if rep.Phone != "0031698765432" {
		t.Fatalf("phone=%q", rep.Phone)
	}
	want := GPS{Date: "2012-03-29", Time: "21:16:57.000", Signal: SignalFull, Fix: FixActive}
	if rep.GPS != want {
		t.Fatalf("gps=%+v want %+v", rep.GPS, want)
	}
	if rep.Geo.Latitude != 52.217078 {
		t.Fatalf("lat=%v want 52.217078", rep.Geo.Latitude)
	}
	if rep.Geo.Longitude != 5.279595 {
		t.Fatalf("lon=%v want 5.279595", rep.Geo.Longitude)
	}
	if rep.Geo.Bearing != 273 {
		t.Fatalf("bearing=%d want 273", rep.Geo.Bearing)
	}
	if rep.Speed != (Speed{}) {
		t.Fatalf("speed=%+v want zero", rep.Speed)
	}
	if rep.IMEI != "123456789012345" {
		t.Fatalf("imei=%q", rep.IMEI)
	}
	if !rep.Checksum {
		t.Fatalf("expected checksum ok")
	}
}

func TestTK102_SpeedConversion(t *testing.T) {
	line := strings.Replace(sampleSentence, ",0.00,", ",22.4,", 1)
	rep, ok := TK102(line)
	if !ok {
		t.Fatalf("expected match")
	}
	want := Speed{Knots: 22.4, KMH: 41.485, MPH: 25.782}
	if rep.Speed != want {
		t.Fatalf("speed=%+v want %+v", rep.Speed, want)
	}
}

func TestTK102_FlagsAndHemispheres(t *testing.T) {
	line := strings.NewReplacer(
		",A,5213", ",V,5213",
		",N,", ",S,",
		",E,", ",W,",
		",F,imei", ",L,imei",
	).Replace(sampleSentence)

	rep, ok := TK102(line)
	if !ok {
		t.Fatalf("expected match for %q", line)
	}
	if rep.GPS.Fix != FixInvalid || rep.GPS.Signal != SignalLow {
		t.Fatalf("gps=%+v want invalid/low", rep.GPS)
	}
	if rep.Geo.Latitude != -52.217078 || rep.Geo.Longitude != -5.279595 {
		t.Fatalf("geo=%+v want negative lat/lon", rep.Geo)
	}
}

func TestTK102_NoMatch(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "Empty", in: ""},
		{name: "Whitespace", in: " \n"},
		{name: "TooFewFields", in: strings.TrimSuffix(sampleSentence, ",123")},
		{name: "TooManyFields", in: sampleSentence + ",extra"},
		{name: "WrongTag", in: strings.Replace(sampleSentence, "GPRMC", "GPGGA", 1)},
		{name: "BadHeader", in: strings.Replace(sampleSentence, "1203292316", "12032", 1)},
		{name: "BadGPSDate", in: strings.Replace(sampleSentence, "290312", "29", 1)},
		{name: "BadGPSTime", in: strings.Replace(sampleSentence, "211657.000", "211657", 1)},
		{name: "BadLatitude", in: strings.Replace(sampleSentence, "5213.0247", "52x3.0247", 1)},
		{name: "ShortLongitude", in: strings.Replace(sampleSentence, "00516.7757", "16.7757", 1)},
		{name: "BadSpeed", in: strings.Replace(sampleSentence, ",0.00,", ",fast,", 1)},
		{name: "EmptySpeed", in: strings.Replace(sampleSentence, ",0.00,", ",,", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, ok := Parse(tc.in)
			if ok {
				t.Fatalf("expected no match, got %+v", rep)
			}
			if rep != (Report{}) {
				t.Fatalf("expected zero report, got %+v", rep)
			}
		})
	}
}

func TestTK102_UnknownBearingIsZero(t *testing.T) {
	noFix := strings.NewReplacer(",A,5213", ",V,5213", ",273.30,", ",,", ",F,imei", ",L,imei").Replace(sampleSentence)
	for _, line := range []string{noFix, strings.Replace(sampleSentence, "273.30", "north", 1)} {
		rep, ok := Parse(line)
		if !ok {
			t.Fatalf("expected match for %q", line)
		}
		if rep.Geo.Bearing != 0 {
			t.Fatalf("bearing=%d want 0", rep.Geo.Bearing)
		}
		if rep.Geo.Latitude != 52.217078 || rep.IMEI != "123456789012345" {
			t.Fatalf("unexpected report %+v", rep)
		}
	}

	rep, _ := Parse(noFix)
	if rep.GPS.Fix != FixInvalid || rep.GPS.Signal != SignalLow {
		t.Fatalf("gps=%+v want invalid/low", rep.GPS)
	}
}

func TestTK102_Deterministic(t *testing.T) {
	a, okA := Parse(sampleSentence)
	b, okB := Parse(sampleSentence)
	if !okA || !okB {
		t.Fatalf("expected match")
	}
	if a != b {
		t.Fatalf("parse not deterministic: %+v vs %+v", a, b)
	}
}

func TestTK102_IMEIPrefixStrippedOnce(t *testing.T) {
	line := strings.Replace(sampleSentence, "imei:123456789012345", "123456789012345", 1)
	rep, ok := TK102(line)
	if !ok {
		t.Fatalf("expected match")
	}
	if rep.IMEI != "123456789012345" {
		t.Fatalf("imei=%q", rep.IMEI)
	}
}

func TestNMEARMC_BareSentence(t *testing.T) {
	rep, ok := Parse("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n")
	if !ok {
		t.Fatalf("expected match")
	}
	if rep.Datetime != "2094-03-23 12:35" {
		t.Fatalf("datetime=%q", rep.Datetime)
	}
	if rep.GPS.Date != "2094-03-23" || rep.GPS.Time != "12:35:19.000" {
		t.Fatalf("gps=%+v", rep.GPS)
	}
	if rep.GPS.Fix != FixActive {
		t.Fatalf("fix=%q want active", rep.GPS.Fix)
	}
	if rep.Geo.Latitude != 48.1173 || rep.Geo.Longitude != 11.516667 || rep.Geo.Bearing != 84 {
		t.Fatalf("geo=%+v", rep.Geo)
	}
	if rep.Speed.KMH != 41.485 {
		t.Fatalf("kmh=%v want 41.485", rep.Speed.KMH)
	}
	if !rep.Checksum || rep.IMEI != "" || rep.Phone != "" {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestNMEARMC_ChecksumMismatch(t *testing.T) {
	if _, ok := NMEARMC("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00"); ok {
		t.Fatalf("expected no match")
	}
}

func TestParser_OrderAndExtension(t *testing.T) {
	var calls []string
	first := func(raw string) (Report, bool) {
		calls = append(calls, "first")
		return Report{}, false
	}
	second := func(raw string) (Report, bool) {
		calls = append(calls, "second")
		return Report{Raw: "second"}, true
	}
	third := func(raw string) (Report, bool) {
		calls = append(calls, "third")
		return Report{Raw: "third"}, true
	}

	base := NewParser(first)
	ext := base.With(second, third)
	if base.Len() != 1 || ext.Len() != 3 {
		t.Fatalf("len base=%d ext=%d", base.Len(), ext.Len())
	}

	rep, ok := ext.Parse("x")
	if !ok || rep.Raw != "second" {
		t.Fatalf("got %+v ok=%v want second", rep, ok)
	}
	if strings.Join(calls, ",") != "first,second" {
		t.Fatalf("calls=%v", calls)
	}

	if _, ok := base.Parse("x"); ok {
		t.Fatalf("base parser must not see appended recognizers")
	}
}

func TestParser_PanickingRecognizerIsNoMatch(t *testing.T) {
	boom := func(raw string) (Report, bool) {
		var f []string
		_ = f[3]
		return Report{}, true
	}
	p := NewParser(boom, TK102)
	rep, ok := p.Parse(sampleSentence)
	if !ok || rep.IMEI != "123456789012345" {
		t.Fatalf("expected fallthrough to TK102, got %+v ok=%v", rep, ok)
	}
}

func TestParser_NilSafe(t *testing.T) {
	var p *Parser
	if _, ok := p.Parse(sampleSentence); ok {
		t.Fatalf("nil parser must not match")
	}
	if p.With(TK102).Len() != 1 {
		t.Fatalf("expected With on nil parser to work")
	}
}
