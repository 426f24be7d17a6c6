package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tk102-ng/internal/server"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" begins a recording; times restart at 0.
// - Data lines are: <t_ns>,<hex>
//   where t_ns is nanoseconds since START and hex is one connection's payload.

type Record struct {
	At time.Duration
	// Payload is nil for START markers.
	Payload []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 256)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		tsStr, hexStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: missing comma", lineNo)
		}
		tsNs, err := strconv.ParseInt(strings.TrimSpace(tsStr), 10, 64)
		if err != nil || tsNs < 0 {
			return nil, fmt.Errorf("line %d: invalid timestamp %q", lineNo, tsStr)
		}
		payload, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(hexStr), " ", ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex payload: %w", lineNo, err)
		}
		if len(payload) == 0 {
			return nil, fmt.Errorf("line %d: empty payload", lineNo)
		}
		recs = append(recs, Record{At: time.Duration(tsNs), Payload: payload})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Writer appends payloads to a log file. It is safe for concurrent use and
// implements server.Observer, recording the input of every track and fail
// event.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// CreateWriter opens path for appending and writes a START marker.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WritePayload(now time.Time, payload []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if len(payload) == 0 {
		return errors.New("payload is empty")
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if _, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(payload)); err != nil {
		return err
	}
	// One line per connection; flush so a crash loses at most the current one.
	return ww.w.Flush()
}

func (ww *Writer) OnEvent(ev server.Event) {
	payload := ev.Payload
	switch ev.Kind {
	case server.EventTrack:
		if payload == "" && ev.Report != nil {
			payload = ev.Report.Raw
		}
	case server.EventFail:
		var perr *server.ParseError
		if payload == "" && errors.As(ev.Err, &perr) {
			payload = perr.Input
		}
	default:
		return
	}
	if payload == "" {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := ww.WritePayload(at, []byte(payload)); err != nil {
		log.Printf("record: %v", err)
	}
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play calls cb for each payload, waiting the recorded gap between them.
// START markers reset the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits).
func Play(records []Record, speedMultiplier float64, sleeper Sleeper, cb func(payload []byte) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}

	var lastAt time.Duration
	haveLast := false
	for _, r := range records {
		if r.Payload == nil {
			haveLast = false
			continue
		}
		if haveLast {
			if wait := time.Duration(float64(r.At-lastAt) / speedMultiplier); wait > 0 {
				sleeper.Sleep(wait)
			}
		}
		if err := cb(r.Payload); err != nil {
			return err
		}
		lastAt = r.At
		haveLast = true
	}
	return nil
}
