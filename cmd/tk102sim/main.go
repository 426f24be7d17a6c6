package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tk102-ng/internal/replay"
	"tk102-ng/internal/sim"
)

type options struct {
	Addr     string
	Count    int
	Interval time.Duration
	Split    bool
	Phone    string
	IMEI     string
	Lat      float64
	Lon      float64
	RadiusNm float64
	Replay   string
	Speed    float64
}

func main() {
	var o options
	flag.StringVar(&o.Addr, "addr", "127.0.0.1:1337", "tk102d address")
	flag.IntVar(&o.Count, "count", 10, "Reports to send (0 = until interrupted)")
	flag.DurationVar(&o.Interval, "interval", 5*time.Second, "Time between reports")
	flag.BoolVar(&o.Split, "split", false, "Send each sentence in two writes")
	flag.StringVar(&o.Phone, "phone", "0031698765432", "Phone number field")
	flag.StringVar(&o.IMEI, "imei", "123456789012345", "IMEI field")
	flag.Float64Var(&o.Lat, "lat", 52.2171, "Track center latitude")
	flag.Float64Var(&o.Lon, "lon", 5.2796, "Track center longitude")
	flag.Float64Var(&o.RadiusNm, "radius-nm", 0.5, "Track radius in NM")
	flag.StringVar(&o.Replay, "replay", "", "Send payloads from a recorded log instead of simulating")
	flag.Float64Var(&o.Speed, "speed", 1.0, "Replay speed multiplier")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if strings.TrimSpace(o.Replay) != "" {
		err = runReplay(ctx, o)
	} else {
		err = runSim(ctx, o, time.Now)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("tk102sim: %v", err)
	}
}

func runSim(ctx context.Context, o options, now func() time.Time) error {
	track := sim.Track{CenterLatDeg: o.Lat, CenterLonDeg: o.Lon, RadiusNm: o.RadiusNm}
	for seq := 0; o.Count <= 0 || seq < o.Count; seq++ {
		if seq > 0 && !sleepCtx(ctx, o.Interval) {
			return ctx.Err()
		}
		t := now()
		lat, lon, trk, kt := track.Position(t)
		line := sim.Sentence(sim.Fix{
			At:         t,
			LatDeg:     lat,
			LonDeg:     lon,
			SpeedKt:    kt,
			TrackDeg:   trk,
			Phone:      o.Phone,
			IMEI:       o.IMEI,
			Active:     true,
			FullSignal: true,
		}, seq)
		if err := send(ctx, o.Addr, []byte(line), o.Split); err != nil {
			return err
		}
		log.Printf("sim: sent report %d to %s", seq, o.Addr)
	}
	return nil
}

func runReplay(ctx context.Context, o options) error {
	f, err := os.Open(o.Replay)
	if err != nil {
		return err
	}
	recs, err := replay.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("replay %s: %w", o.Replay, err)
	}
	n := 0
	err = replay.Play(recs, o.Speed, nil, func(payload []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		return send(ctx, o.Addr, payload, o.Split)
	})
	log.Printf("replay: sent %d payloads to %s", n, o.Addr)
	return err
}

// send writes one payload on its own connection, the way the device does.
func send(ctx context.Context, addr string, payload []byte, split bool) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	parts := [][]byte{payload}
	if split && len(payload) > 1 {
		parts = [][]byte{payload[:len(payload)/2], payload[len(payload)/2:]}
	}
	for i, p := range parts {
		if i > 0 {
			// Give the server a chance to see two separate reads.
			time.Sleep(20 * time.Millisecond)
		}
		if _, err := conn.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
