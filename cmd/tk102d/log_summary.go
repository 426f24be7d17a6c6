package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"tk102-ng/internal/replay"
	"tk102-ng/internal/tk102"
)

type logSummary struct {
	Segments    int
	Payloads    int
	Tracks      int
	Fails       int
	BadChecksum int
	MaxDuration time.Duration
	IMEICounts  map[string]int
}

func summarizePayloadLog(records []replay.Record, p *tk102.Parser) logSummary {
	s := logSummary{IMEICounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasPayloads := false
	segments := 0

	for _, r := range records {
		if r.Payload == nil {
			segments++
			origin = r.At
			continue
		}
		hasPayloads = true

		s.Payloads++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		rep, ok := p.Parse(strings.ToValidUTF8(string(r.Payload), "\uFFFD"))
		if !ok {
			s.Fails++
			continue
		}
		s.Tracks++
		if !rep.Checksum {
			s.BadChecksum++
		}
		s.IMEICounts[rep.IMEI]++
	}
	if segments == 0 && hasPayloads {
		segments = 1
	}
	s.Segments = segments

	return s
}

func printLogSummary(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizePayloadLog(recs, tk102.Default())

	fmt.Printf("path: %s\n", path)
	fmt.Printf("segments: %d\n", s.Segments)
	fmt.Printf("payloads: %d\n", s.Payloads)
	fmt.Printf("tracks: %d\n", s.Tracks)
	fmt.Printf("fails: %d\n", s.Fails)
	fmt.Printf("bad_checksum: %d\n", s.BadChecksum)
	fmt.Printf("max_duration: %s\n", s.MaxDuration)

	keys := make([]string, 0, len(s.IMEICounts))
	for k := range s.IMEICounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("imei_counts:\n")
	for _, k := range keys {
		name := k
		if name == "" {
			name = "(none)"
		}
		fmt.Printf("  %s: %d\n", name, s.IMEICounts[k])
	}
	return nil
}
